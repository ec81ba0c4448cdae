package crange

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

type fuzzOp struct {
	typ  byte
	key  uint64
	size uint64
}

func decodeFuzzOps(data []byte, maxOps int) []fuzzOp {
	var ops []fuzzOp
	for i := 0; i+2 < len(data) && len(ops) < maxOps; i += 3 {
		ops = append(ops, fuzzOp{
			typ:  data[i] % 3,
			key:  uint64(data[i+1]),
			size: uint64(data[i+2]%32) + 1,
		})
	}
	return ops
}

// FuzzReplaceAgainstBitmap applies inserts, removals and splits to an index
// and to a bitmap of covered keys, and requires both to agree.
func FuzzReplaceAgainstBitmap(f *testing.F) {
	f.Add([]byte{0, 1, 10, 0, 20, 5, 1, 5, 3})
	f.Add([]byte{0, 0, 255, 2, 100, 1, 1, 0, 40})
	f.Add([]byte{0, 10, 10, 0, 30, 10, 2, 12, 0, 1, 25, 10})

	f.Fuzz(func(t *testing.T, input []byte) {
		const maxOps = 64
		ops := decodeFuzzOps(input, maxOps)
		if len(ops) == 0 {
			t.Skip()
		}

		c := New(WithLevels(4), WithSeed(uint64(len(input))))
		model := roaring64.New()

		for _, op := range ops {
			end := op.key + op.size
			switch op.typ {
			case 0: // insert when free
				query := roaring64.New()
				query.AddRange(op.key, end)
				if model.Intersects(query) {
					if insert(t, c, op.key, op.size) {
						t.Fatalf("inserted [%d, %d) over covered keys", op.key, end)
					}
					continue
				}
				if !insert(t, c, op.key, op.size) {
					t.Fatalf("insert of free [%d, %d) refused", op.key, end)
				}
				model.AddRange(op.key, end)
			case 1: // remove every overlapping range
				l := c.FindAndLock(op.key, op.size)
				for r := range l.All() {
					model.RemoveRange(r.Key(), r.End())
				}
				l.Replace()
				l.Release()
			case 2: // punch a hole in the range covering key
				if r := c.Search(op.key, 1); r != nil && r.Size() >= 3 {
					model.Remove(r.Key() + r.Size()/2)
				}
				if err := splitFirst(c, op.key, 1); err != nil {
					t.Fatal(err)
				}
			}
		}

		got := roaring64.New()
		for r := range c.All() {
			got.AddRange(r.Key(), r.End())
		}
		if !got.Equals(model) {
			t.Fatalf("index covers %v, model covers %v", got.ToArray(), model.ToArray())
		}
		if err := c.Check(); err != nil {
			t.Fatal(err)
		}
	})
}
