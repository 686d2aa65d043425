//go:build js

package pipeline

import "errors"

func marshalCanonicalParquet([]CanonicalSample) ([]byte, error) {
	return nil, errors.New("parquet output is not available in this build; use csv")
}
