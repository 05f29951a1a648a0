package strata

import "iter"

// RecurseFields yields (path, field) pairs for every field reachable from
// the instance's schema: a lazy depth-first traversal that visits a schema's
// own fields in declaration order before descending into its section fields.
// The order is deterministic; it fixes the order values are applied during
// default and environment population.
func RecurseFields(c *Config) iter.Seq2[FieldPath, Field] {
	return recurseSchema(c.schema, nil)
}

// SchemaFields is RecurseFields without an instance: the traversal depends
// only on the schema.
func SchemaFields(s *Schema) iter.Seq2[FieldPath, Field] {
	return recurseSchema(s, nil)
}

func recurseSchema(s *Schema, prefix FieldPath) iter.Seq2[FieldPath, Field] {
	return func(yield func(FieldPath, Field) bool) {
		walkSchema(s, prefix, yield)
	}
}

func walkSchema(s *Schema, prefix FieldPath, yield func(FieldPath, Field) bool) bool {
	// Own fields first, declaration order.
	for _, name := range s.order {
		if !yield(prefix.Child(name), s.fields[name]) {
			return false
		}
	}
	// Then descend into sections, still in declaration order.
	for _, name := range s.order {
		if sf, ok := s.fields[name].(*SectionField); ok {
			if !walkSchema(sf.schema, prefix.Child(name), yield) {
				return false
			}
		}
	}
	return true
}

// DataFields yields only the leaf (path, *DataField) pairs of a schema, the
// paths that carry resolvable values during a merge.
func DataFields(s *Schema) iter.Seq2[FieldPath, *DataField] {
	return func(yield func(FieldPath, *DataField) bool) {
		for path, f := range SchemaFields(s) {
			if df, ok := f.(*DataField); ok {
				if !yield(path, df) {
					return
				}
			}
		}
	}
}
