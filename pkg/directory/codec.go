// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

const tagName = "plc"

// decode copies loosely typed XML-RPC values into typed records. PLCAPI
// returns integers as int64 and unset fields as nil.
func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tagName,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("failed to decode %T: %w", out, err)
	}
	return nil
}

// toFields converts a record into the struct argument of an Add call.
// Unset omitempty fields are dropped.
func toFields(record any) (map[string]any, error) {
	fields := map[string]any{}
	if err := decode(record, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
