package dialect

import (
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id      string
		want    Dialect
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"identity", Identity, false},
		{"sequence-SQL:2003", SequenceSQL2003, false},
		{"sequence-PostgreSQL", SequencePostgreSQL, false},
		{"sequence-postgresql", SequencePostgreSQL, false},
		{"sequence-MaxDB", SequenceMaxDB, false},
		{"sequence-Firebird", SequenceFirebird, false},
		{"sequence-DB2", SequenceDB2, false},
		{"sequence-Oracle", None, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestDialectStringRoundTrip(t *testing.T) {
	t.Parallel()

	for d := None; d <= SequenceDB2; d++ {
		got, err := Parse(d.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", d.String(), err)
		}
		if got != d {
			t.Errorf("Parse(%q) = %v, want %v", d.String(), got, d)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect Dialect
		sql     string
		wantKey string
		wantOK  bool
	}{
		{"none never matches", None, "INSERT INTO orders VALUES (1)", "", false},

		{"identity insert into", Identity, "INSERT INTO Orders (a, b) VALUES (1, 2)", "Orders", true},
		{"identity lower case", Identity, "insert into orders values (1)", "orders", true},
		{"identity without into", Identity, "INSERT orders VALUES (1)", "orders", true},
		{"identity quoted", Identity, `INSERT INTO "orders" VALUES (1)`, "orders", true},
		{"identity extra whitespace", Identity, "INSERT\n\tINTO   orders VALUES (1)", "orders", true},
		{"identity schema qualified", Identity, "INSERT INTO sales.Orders (a) VALUES (1)", "Orders", true},
		{"identity quoted qualified", Identity, `INSERT INTO "sales"."Orders" VALUES (1)`, "Orders", true},
		{"identity bracketed", Identity, "INSERT INTO [dbo].[Orders] VALUES (1)", "Orders", true},
		{"identity ignores update", Identity, "UPDATE orders SET a = 1", "", false},

		{"sql2003", SequenceSQL2003, "SELECT NEXT VALUE FOR order_seq", "order_seq", true},
		{"sql2003 lower", SequenceSQL2003, "select next value for order_seq", "order_seq", true},
		{"sql2003 qualified", SequenceSQL2003, "SELECT NEXT VALUE FOR sales.order_seq", "order_seq", true},
		{"sql2003 no match", SequenceSQL2003, "SELECT 1", "", false},

		{"postgres nextval", SequencePostgreSQL, "SELECT nextval('my_seq')", "my_seq", true},
		{"postgres in insert", SequencePostgreSQL, "INSERT INTO t (id) VALUES (NEXTVAL( 'order_seq' ))", "order_seq", true},
		{"postgres qualified", SequencePostgreSQL, "SELECT nextval('public.my_seq')", "my_seq", true},
		{"postgres quoted name", SequencePostgreSQL, `SELECT nextval('"MySeq"')`, "MySeq", true},
		{"postgres regclass cast", SequencePostgreSQL, "INSERT INTO t (id) VALUES (nextval('my_seq'::regclass))", "my_seq", true},
		{"postgres quoted qualified", SequencePostgreSQL, `SELECT nextval('"public"."MySeq"')`, "MySeq", true},
		{"postgres currval ignored", SequencePostgreSQL, "SELECT currval('my_seq')", "", false},

		{"maxdb", SequenceMaxDB, "SELECT order_seq.NEXTVAL FROM dual", "order_seq", true},
		{"maxdb quoted", SequenceMaxDB, `SELECT "order_seq".nextval FROM dual`, "order_seq", true},
		{"maxdb qualified", SequenceMaxDB, "SELECT sales.order_seq.NEXTVAL FROM dual", "order_seq", true},

		{"firebird", SequenceFirebird, "SELECT GEN_ID(order_gen, 1) FROM rdb$database", "order_gen", true},
		{"firebird quoted", SequenceFirebird, `SELECT gen_id("order_gen", 10) FROM rdb$database`, "order_gen", true},
		{"firebird qualified", SequenceFirebird, "SELECT GEN_ID(sales.order_gen, 1) FROM rdb$database", "order_gen", true},
		{"firebird missing step", SequenceFirebird, "SELECT GEN_ID(order_gen) FROM rdb$database", "", false},

		{"db2", SequenceDB2, "VALUES NEXTVAL FOR order_seq", "order_seq", true},
		{"db2 qualified", SequenceDB2, "VALUES NEXTVAL FOR sales.order_seq", "order_seq", true},
		{"db2 lower", SequenceDB2, "values nextval for order_seq", "order_seq", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewClassifier(tt.dialect)
			key, ok := c.Classify(tt.sql)
			if ok != tt.wantOK || key != tt.wantKey {
				t.Errorf("Classify(%q) = (%q, %v), want (%q, %v)", tt.sql, key, ok, tt.wantKey, tt.wantOK)
			}

			// Second call is served from the cache and must agree
			key2, ok2 := c.Classify(tt.sql)
			if key2 != key || ok2 != ok {
				t.Errorf("cached Classify(%q) = (%q, %v), want (%q, %v)", tt.sql, key2, ok2, key, ok)
			}
		})
	}
}

func TestIsReadOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sql  string
		want bool
	}{
		{"SELECT * FROM orders", true},
		{"select id from orders where id = 1;", true},
		{"SELECT 1", true},
		{"INSERT INTO orders VALUES (1)", false},
		{"UPDATE orders SET a = 1", false},
		{"DELETE FROM orders", false},
		{"CREATE TABLE t (id INTEGER)", false},
		{"SELECT 1; DELETE FROM orders", false},
		{"not sql at all", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsReadOnly(tt.sql); got != tt.want {
			t.Errorf("IsReadOnly(%q) = %v, want %v", tt.sql, got, tt.want)
		}
	}
}
