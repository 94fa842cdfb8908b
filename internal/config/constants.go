package config

// Version is reported by system.client_version.
const Version = "0.9.8"

// APIVersion is reported by system.api_version.
const APIVersion = 10

// EnvPrefix prefixes every environment override, e.g. TORRENTRPC_RPC_LISTEN.
const EnvPrefix = "TORRENTRPC_"

// MaxCallDepth bounds nested user method calls.
const MaxCallDepth = 64

// MaxValueDepth bounds array and struct nesting in a decoded request.
const MaxValueDepth = 256

// RPC size limits in bytes.
const (
	DefaultSizeLimit = 2 << 20
	MaxSizeLimit     = 64 << 20
)

// Dialect names as accepted by network.xmlrpc.dialect.set and the config file.
const (
	DialectGeneric = "generic"
	DialectI8      = "i8"
	DialectApache  = "apache"
)

// Builtin command names used across packages.
const (
	MaxActiveCommand   = "scheduler.max_active"
	PrintCommand       = "print"
	CatchCommand       = "catch"
	MulticallCommand   = "system.multicall"
	SaveMethodsCommand = "session.save_methods"
)

// SetSuffix is appended to a variable name to form its setter.
const SetSuffix = ".set"
