package multiauth

// MapFields converts a data record based on a field mapping and an
// optional key list.
//
// Keys of mapping are target names, values are the source names whose
// values are pulled from data. A target key whose source is missing from
// data ends up with a nil value. Keys of data that are not referenced as
// a mapping source pass through unchanged.
//
// If keys is non-nil the result is restricted to exactly that key set,
// with missing keys present as nil. This guarantees the consumer always
// receives a complete, predictable record no matter what the producer
// supplied.
func MapFields(data Fields, mapping map[string]string, keys []string) Fields {
	sources := make(map[string]struct{}, len(mapping))
	for _, src := range mapping {
		sources[src] = struct{}{}
	}

	result := make(Fields, len(data)+len(mapping))

	for k, v := range data {
		if _, mapped := sources[k]; !mapped {
			result[k] = v
		}
	}

	for target, source := range mapping {
		result[target] = data[source]
	}

	if keys == nil {
		return result
	}

	restricted := make(Fields, len(keys))
	for _, k := range keys {
		restricted[k] = result[k]
	}

	return restricted
}
