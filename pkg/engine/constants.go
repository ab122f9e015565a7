package engine

// Default configuration values for the scheduler.
const (
	// DefaultMaxParallelism is stored on the Scheduler but not read:
	// Step always runs exactly one ready operation.
	DefaultMaxParallelism = 10

	// DefaultNodePriority is not consulted by Selection, which orders
	// by topological depth, then display name, then operation id.
	DefaultNodePriority = 0
)
