/*
 * Copyright 2024-2025 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utf16

import (
	"golang.org/x/text/encoding/unicode"
)

// names carried in request records are UTF-16LE without the BOM and
// without the terminating NUL character
var codec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encode converts the UTF-8 string to UTF-16LE bytes. Invalid
// sequences are replaced with the replacement character.
func Encode(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := codec.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return b
}

// Decode converts the UTF-16LE byte slice into the UTF-8 string. A
// trailing odd byte is ignored, and so is the terminating NUL.
func Decode(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	if len(b) == 0 {
		return ""
	}
	s, err := codec.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return string(s)
}

// Size returns the number of bytes the string occupies once encoded.
func Size(s string) int { return len(Encode(s)) }
