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

// Package objectstore wraps the S3 operations the transfer executors need.
// Cross-account buckets are out of scope; a single credential scope is
// assumed for both sides of a move.
package objectstore

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	awsconfig "github.com/filescheduler/filescheduler/pkg/aws"
	"github.com/filescheduler/filescheduler/pkg/location"
)

// Mover abstracts object-store actions on behalf of the executors. Fakes
// implement it in tests.
type Mover interface {
	// Move copies src to dst within the store and deletes src.
	Move(ctx context.Context, src, dst location.S3Location) error
	// Upload streams body into dst.
	Upload(ctx context.Context, dst location.S3Location, body io.Reader) error
	// Download streams src into w.
	Download(ctx context.Context, src location.S3Location, w io.WriterAt) error
}

// S3Store implements Mover on the AWS S3 API.
type S3Store struct {
	s3         s3iface.S3API
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

var _ Mover = (*S3Store)(nil)

// NewS3Store returns an S3-backed Mover.
func NewS3Store(awsConfig *aws.Config, region string) (*S3Store, error) {
	s, err := awsconfig.NewSession(awsConfig, region)
	if err != nil {
		return nil, err
	}
	return &S3Store{
		s3:         s3.New(s),
		uploader:   s3manager.NewUploader(s),
		downloader: s3manager.NewDownloader(s),
	}, nil
}

// Move is implemented as server-side copy followed by delete. S3 has no
// native rename. If the delete fails the object exists in both places;
// partial state is reported, not rolled back.
func (s *S3Store) Move(ctx context.Context, src, dst location.S3Location) error {
	_, err := s.s3.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Bucket),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(src.Bucket + "/" + src.Key),
	})
	if err != nil {
		return errors.Wrapf(err, "Failed to copy %s to %s", src, dst)
	}
	_, err = s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Key),
	})
	return errors.Wrapf(err, "Copied %s to %s but failed to delete source", src, dst)
}

func (s *S3Store) Upload(ctx context.Context, dst location.S3Location, body io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(dst.Bucket),
		Key:    aws.String(dst.Key),
		Body:   body,
	})
	return errors.Wrapf(err, "Failed to upload to %s", dst)
}

func (s *S3Store) Download(ctx context.Context, src location.S3Location, w io.WriterAt) error {
	_, err := s.downloader.DownloadWithContext(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Key),
	})
	return errors.Wrapf(err, "Failed to download %s", src)
}
