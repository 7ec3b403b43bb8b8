package repository

import "fmt"

const (
	EngineTypeJSON   = "json"
	EngineTypeSQLite = "sqlite"
)

// NewEngineFromConfig creates an Engine based on the engine type.
// An empty type selects the JSON engine.
func NewEngineFromConfig(engineType string) (Engine, error) {
	switch engineType {
	case EngineTypeJSON, "":
		return NewJSONEngine(), nil
	case EngineTypeSQLite:
		return NewSQLiteEngine(), nil
	default:
		return nil, fmt.Errorf("unknown engine type: %s (supported: %s, %s)", engineType, EngineTypeJSON, EngineTypeSQLite)
	}
}

var (
	_ Engine    = (*JSONEngine)(nil)
	_ Engine    = (*SQLiteEngine)(nil)
	_ Store     = (*JSONRepository)(nil)
	_ Watchable = (*JSONRepository)(nil)
	_ Store     = (*SQLiteRepository)(nil)
)
