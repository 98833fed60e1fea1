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

package aws

import (
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"
)

const (
	// AccessKeyID represents AWS Access key ID
	AccessKeyID = "AWS_ACCESS_KEY_ID"
	// SecretAccessKey represents AWS Secret Access Key
	SecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	// Region represents AWS region
	Region = "AWS_REGION"

	// DefaultRegion is used when AWS_REGION is not set. The transfer
	// workflow runs in a single region.
	DefaultRegion = "ap-southeast-2"

	maxRetries = 10
)

// GetConfig returns a configuration to establish an AWS connection and the
// region to connect to.
func GetConfig() (awsConfig *aws.Config, region string) {
	region = os.Getenv(Region)
	if region == "" {
		region = DefaultRegion
	}
	cfg := aws.NewConfig().WithMaxRetries(maxRetries)
	if id, secret := os.Getenv(AccessKeyID), os.Getenv(SecretAccessKey); id != "" && secret != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(id, secret, ""))
	}
	return cfg, region
}

// NewSession returns a session for the given config and region. The session
// falls back to the default credential provider chain (instance role,
// Lambda execution role) when no static keys are configured.
func NewSession(awsConfig *aws.Config, region string) (*session.Session, error) {
	s, err := session.NewSession(awsConfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create session")
	}
	return s, nil
}
