// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	cases := []struct {
		text string
		addr Address
	}{
		{"", Address{}},
		{"content", Address{NameSlot("content")}},
		{"content.3", Address{NameSlot("content"), IndexSlot(3)}},
		{"content.3.text.10", Address{NameSlot("content"), IndexSlot(3), NameSlot("text"), IndexSlot(10)}},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			addr, err := Parse(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.addr, addr)
			assert.Equal(t, tc.text, addr.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("content..3")
	assert.Error(t, err)

	_, err = Parse("content.-1")
	assert.Error(t, err)
}

func TestAppendDoesNotAlias(t *testing.T) {
	base := Address{NameSlot("content"), IndexSlot(0)}
	a := base.Append(NameSlot("text"))
	b := base.Append(NameSlot("caption"))

	assert.Equal(t, "content.0.text", a.String())
	assert.Equal(t, "content.0.caption", b.String())
	assert.Equal(t, "content.0", base.String())
}
