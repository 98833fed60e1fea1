// Copyright 2023 The FileScheduler Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kms implements the secrets.Decrypter collaborator on AWS KMS.
package kms

import (
	"context"
	"encoding/base64"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/pkg/errors"

	awsconfig "github.com/filescheduler/filescheduler/pkg/aws"
	"github.com/filescheduler/filescheduler/pkg/secrets"
)

// Decrypter decrypts base64-encoded KMS ciphertext blobs.
type Decrypter struct {
	kms kmsiface.KMSAPI
}

var _ secrets.Decrypter = (*Decrypter)(nil)

// NewDecrypter returns a KMS-backed Decrypter.
func NewDecrypter(awsConfig *aws.Config, region string) (*Decrypter, error) {
	s, err := awsconfig.NewSession(awsConfig, region)
	if err != nil {
		return nil, err
	}
	return &Decrypter{kms: kms.New(s)}, nil
}

// Decrypt base64-decodes ciphertext and decrypts it with KMS. The error
// intentionally omits the ciphertext.
func (d *Decrypter) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.New("ciphertext is not valid base64")
	}
	out, err := d.kms.DecryptWithContext(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return "", errors.Wrap(err, "KMS decrypt failed")
	}
	return string(out.Plaintext), nil
}
