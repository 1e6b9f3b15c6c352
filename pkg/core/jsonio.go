package core

import (
	"encoding/json"
	"io"
)

// MarshalResult pretty-prints a scan result as JSON for humans or
// pipelines. Unlike the CLI's JSON report, values are not truncated.
func MarshalResult(w io.Writer, res ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// UnmarshalResult decodes a scan result, useful for ingestion tests.
func UnmarshalResult(r io.Reader) (ScanResult, error) {
	var res ScanResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return ScanResult{}, err
	}
	return res, nil
}
