// Package dialect derives lock keys from SQL text for statements whose
// outcome depends on backend-local generators (identity columns and
// sequences). Two backends evaluating such statements concurrently may
// hand out different values, so callers serialize them per key.
package dialect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Dialect selects the pattern used to extract a lock key
type Dialect int

const (
	None Dialect = iota
	Identity
	SequenceSQL2003
	SequencePostgreSQL
	SequenceMaxDB
	SequenceFirebird
	SequenceDB2
)

// Cache size for memoised classifications per classifier
const classifyCacheSize = 4096

var names = map[Dialect]string{
	None:               "none",
	Identity:           "identity",
	SequenceSQL2003:    "sequence-SQL:2003",
	SequencePostgreSQL: "sequence-PostgreSQL",
	SequenceMaxDB:      "sequence-MaxDB",
	SequenceFirebird:   "sequence-Firebird",
	SequenceDB2:        "sequence-DB2",
}

// object matches an optionally quoted name with any number of optionally
// quoted qualifiers (schema, catalog) and captures the last part
const (
	quoteOpen  = `["\x60\[]?`
	quoteClose = `["\x60\]]?`
	object     = `(?:` + quoteOpen + `\w+` + quoteClose + `\.)*` + quoteOpen + `(\w+)` + quoteClose
)

var patterns = map[Dialect]*regexp.Regexp{
	Identity:           regexp.MustCompile(`(?i)\bINSERT\s+(?:INTO\s+)?` + object),
	SequenceSQL2003:    regexp.MustCompile(`(?i)\bNEXT\s+VALUE\s+FOR\s+` + object),
	SequencePostgreSQL: regexp.MustCompile(`(?i)\bNEXTVAL\s*\(\s*'` + object + `'(?:\s*::\s*regclass)?\s*\)`),
	SequenceMaxDB:      regexp.MustCompile(`(?i)` + quoteOpen + `(\w+)` + quoteClose + `\.NEXTVAL\b`),
	SequenceFirebird:   regexp.MustCompile(`(?i)\bGEN_ID\s*\(\s*` + object + `\s*,\s*-?\d+\s*\)`),
	SequenceDB2:        regexp.MustCompile(`(?i)\bNEXTVAL\s+FOR\s+` + object),
}

func (d Dialect) String() string {
	if name, ok := names[d]; ok {
		return name
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// Parse maps a configuration identifier to a Dialect. The empty string
// selects None.
func Parse(id string) (Dialect, error) {
	if id == "" {
		return None, nil
	}
	for d, name := range names {
		if strings.EqualFold(id, name) {
			return d, nil
		}
	}
	return None, fmt.Errorf("unknown dialect: %s", id)
}

type classification struct {
	key string
	ok  bool
}

// Classifier extracts lock keys for one dialect. Safe for concurrent use.
type Classifier struct {
	dialect Dialect
	pattern *regexp.Regexp
	cache   *lru.Cache[uint64, classification]
}

// NewClassifier creates a classifier for d
func NewClassifier(d Dialect) *Classifier {
	cache, err := lru.New[uint64, classification](classifyCacheSize)
	if err != nil {
		panic("failed to create classification cache: " + err.Error())
	}
	return &Classifier{
		dialect: d,
		pattern: patterns[d],
		cache:   cache,
	}
}

func (c *Classifier) Dialect() Dialect { return c.dialect }

// Classify returns the object name a statement must be serialized on.
// ok is false when the statement needs no serialization.
func (c *Classifier) Classify(sql string) (key string, ok bool) {
	if c.pattern == nil {
		return "", false
	}

	hash := xxhash.Sum64String(sql)
	if cached, hit := c.cache.Get(hash); hit {
		return cached.key, cached.ok
	}

	var result classification
	if m := c.pattern.FindStringSubmatch(sql); m != nil {
		result = classification{key: m[1], ok: true}
	}
	c.cache.Add(hash, result)
	return result.key, result.ok
}
