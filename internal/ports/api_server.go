package ports

// APIServer defines the interface for the serving surface
type APIServer interface {
	// Start starts the server
	Start() error

	// Stop stops the server gracefully
	Stop() error
}
