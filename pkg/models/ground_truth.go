package models

import (
	"time"

	"github.com/google/uuid"
)

// GroundTruth is one versioned snapshot of the table/join reference graph.
// Versions are append-only; the latest version is current.
type GroundTruth struct {
	ID        uuid.UUID        `json:"id"`
	Version   int              `json:"version"`
	Graph     GroundTruthGraph `json:"graph"`
	CreatedAt time.Time        `json:"created_at"`
}

// GroundTruthGraph is the JSON document stored per version.
type GroundTruthGraph struct {
	Tables   []GroundTruthTable `json:"tables"`
	Joins    []GroundTruthJoin  `json:"joins"`
	Metadata GroundTruthMeta    `json:"metadata"`
}

// GroundTruthTable describes one table and its known columns.
type GroundTruthTable struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Columns     []string `json:"columns"`
}

// GroundTruthJoin describes one known join edge.
type GroundTruthJoin struct {
	LeftTable   string  `json:"left_table"`
	LeftColumn  string  `json:"left_column"`
	RightTable  string  `json:"right_table"`
	RightColumn string  `json:"right_column"`
	JoinType    string  `json:"join_type"`
	Confidence  float64 `json:"confidence"`
	Provenance  string  `json:"provenance"`
}

// GroundTruthMeta carries build information for the snapshot.
type GroundTruthMeta struct {
	BuiltAt           time.Time `json:"built_at"`
	TableCount        int       `json:"table_count"`
	RelationshipCount int       `json:"relationship_count"`
	Source            string    `json:"source"`
}

// HasTable reports whether the graph contains the named table (case-insensitive
// comparison is the caller's job; graph names are stored uppercase).
func (g *GroundTruthGraph) HasTable(name string) bool {
	for _, t := range g.Tables {
		if t.Name == name {
			return true
		}
	}
	return false
}

// HasColumn reports whether the named table contains the named column.
func (g *GroundTruthGraph) HasColumn(table, column string) bool {
	for _, t := range g.Tables {
		if t.Name != table {
			continue
		}
		for _, c := range t.Columns {
			if c == column {
				return true
			}
		}
	}
	return false
}

// HasJoin reports whether a join edge exists between the two tables in either
// direction.
func (g *GroundTruthGraph) HasJoin(leftTable, rightTable string) bool {
	for _, j := range g.Joins {
		if (j.LeftTable == leftTable && j.RightTable == rightTable) ||
			(j.LeftTable == rightTable && j.RightTable == leftTable) {
			return true
		}
	}
	return false
}
