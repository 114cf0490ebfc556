// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package random

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"fmt"

	"github.com/pborman/uuid"
)

const charset = "ybndrfg8ejkmcpqxot1uwisza345h769"

var encoding = base32.NewEncoding(charset)

// NewID returns a 26 characters long, z-base-32 encoded UUID v4 with the
// padding stripped off. It's used for connection ids.
func NewID() string {
	var b bytes.Buffer
	encoder := base32.NewEncoder(encoding, &b)
	if _, err := encoder.Write(uuid.NewRandom()); err != nil {
		return ""
	}
	encoder.Close()
	b.Truncate(26)
	return b.String()
}

// NewSecureString returns a secure random string of the given length.
// The resulting entropy will be (6 * length) bits.
func NewSecureString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	data := make([]byte, 1+(length*4)/3)
	if n, err := rand.Read(data); err != nil {
		return "", err
	} else if n != len(data) {
		return "", fmt.Errorf("failed to read enough data")
	}
	return base64.RawURLEncoding.EncodeToString(data)[:length], nil
}
