package knowledge

import (
	"embed"
	"fmt"
	"io/fs"
	"sync"
)

//go:embed tables/*.yaml
var embeddedTables embed.FS

var (
	tablesOnce sync.Once
	tablesData *Tables
	tablesErr  error
)

func embeddedFS() fs.FS {
	sub, err := fs.Sub(embeddedTables, "tables")
	if err != nil {
		// The embed pattern guarantees the directory exists.
		panic(err)
	}
	return sub
}

// Default returns the embedded tables, parsed once per process.
func Default() (*Tables, error) {
	tablesOnce.Do(func() {
		t, err := LoadFS(embeddedFS())
		if err != nil {
			tablesErr = fmt.Errorf("parse embedded knowledge tables failed: %w", err)
			return
		}
		tablesData = t
	})
	if tablesErr != nil {
		return nil, tablesErr
	}
	return tablesData, nil
}
