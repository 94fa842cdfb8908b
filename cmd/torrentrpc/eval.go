package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/object"
	"github.com/funvibe/torrentrpc/internal/rpc"
)

var evalCmd = &cobra.Command{
	Use:   "eval <command>...",
	Short: "Evaluate command strings in a fresh engine and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEval,
}

var callCmd = &cobra.Command{
	Use:   "call <method> [target] [param]...",
	Short: "Call a method on a running server over gRPC",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCall,
}

var (
	evalStorage bool
	callAddr    string
	callTimeout time.Duration
)

func init() {
	evalCmd.Flags().BoolVar(&evalStorage, "with-storage", false, "restore saved methods before evaluating")
	callCmd.Flags().StringVarP(&callAddr, "addr", "a", "127.0.0.1:5001", "gRPC server address")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 10*time.Second, "call timeout")
}

// printer colours results and errors only when writing to a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(f *os.File) *printer {
	return &printer{
		w:     f,
		color: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()),
	}
}

func (p *printer) result(v object.Value) {
	if v.IsNone() {
		return
	}
	if p.color {
		fmt.Fprintf(p.w, "\x1b[32m%s\x1b[0m\n", v.Inspect())
		return
	}
	fmt.Fprintln(p.w, v.Inspect())
}

func (p *printer) fail(err error) {
	if p.color {
		fmt.Fprintf(p.w, "\x1b[31merror: %s\x1b[0m\n", err)
		return
	}
	fmt.Fprintf(p.w, "error: %s\n", err)
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	d, err := newDaemon(cfg, evalStorage)
	if err != nil {
		return err
	}
	defer d.close()

	out := newPrinter(os.Stdout)
	failed := 0
	for _, src := range args {
		v, err := d.engine.Eval(src, command.NoTarget())
		if err != nil {
			out.fail(err)
			failed++
			continue
		}
		out.result(v)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d commands failed", failed, len(args))
	}
	return nil
}

func runCall(cmd *cobra.Command, args []string) error {
	conn, err := grpc.NewClient(callAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", callAddr, err)
	}
	defer conn.Close()

	client, err := rpc.NewClient(conn)
	if err != nil {
		return err
	}

	target := ""
	var params []object.Value
	if len(args) > 1 {
		target = args[1]
		for _, a := range args[2:] {
			params = append(params, object.String(a))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	out := newPrinter(os.Stdout)
	v, err := client.Call(ctx, args[0], target, params...)
	if err != nil {
		out.fail(err)
		return fmt.Errorf("call %s failed", args[0])
	}
	out.result(v)
	return nil
}
