// Package phtable builds immutable perfect-hash tables over a static key
// set known in advance.
//
// Construction uses hash-and-displace: each key is hashed into a bucket
// and a base slot, buckets are solved largest first, and each bucket gets
// the smallest displacement that moves all its keys into free slots.
// When a bucket cannot be placed, construction starts over with the next
// seed, up to a bounded number of attempts. Lookup is one hash, one
// displacement read and one key comparison, so keys outside the set are
// reported absent rather than aliased to another key's slot.
//
// # Basic Usage
//
// Building a table:
//
//	tbl, err := phtable.Build([]phtable.Entry{
//	    {Key: []byte("a"), Value: []byte("1")},
//	    {Key: []byte("b"), Value: []byte("2")},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := tbl.WriteFile("table.pht"); err != nil {
//	    log.Fatal(err)
//	}
//
// Querying a table:
//
//	tbl, err := phtable.Open("table.pht")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tbl.Close()
//
//	v, ok := tbl.Get([]byte("a"))
//
// A table written to a file can also be embedded with //go:embed and
// opened with MustOpenBytes; cmd/phfgen generates such a wrapper.
//
// # Package Structure
//
//   - Public API: builder.go (Build, BuildSet, NewBuilder), table.go (Open, Get, Index)
//   - Configuration: builder_options.go (BuildOption, With* functions)
//   - Serialization: header.go (header, footer), assemble.go, table_writer.go
//   - Key hashing: hasher.go, internal/keyhash/
//   - Construction: internal/displace/ (bucket plan, displacement solver)
//   - Byte layout: internal/encoding/ (displacements, slot entries)
//   - Platform: fallocate_*.go, prefault_*.go, advise_*.go
package phtable
