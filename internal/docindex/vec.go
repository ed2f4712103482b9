//go:build sqlite_vec && cgo

package docindex

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers sqlite-vec with mattn/go-sqlite3 so every new connection
	// gets vec_distance_cosine; New detects it with vec_version().
	vec.Auto()
}
