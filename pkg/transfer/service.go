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

package transfer

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/google/uuid"
	"github.com/kanisterio/errkit"

	"github.com/filescheduler/filescheduler/pkg/config"
	"github.com/filescheduler/filescheduler/pkg/events"
	"github.com/filescheduler/filescheduler/pkg/field"
	"github.com/filescheduler/filescheduler/pkg/location"
	"github.com/filescheduler/filescheduler/pkg/log"
	"github.com/filescheduler/filescheduler/pkg/objectstore"
	"github.com/filescheduler/filescheduler/pkg/secrets"
	"github.com/filescheduler/filescheduler/pkg/smb"
)

// opTimeout bounds each blocking store or SMB call so a wedged network
// operation cannot hang a transfer forever.
const opTimeout = 15 * time.Minute

// Service executes transfers in-process. It runs wherever the on-prem
// network is reachable: the CLI and the transient transfer instance. The
// Lambda dispatcher never uses it for on-prem legs; it delegates instead.
type Service struct {
	store     objectstore.Mover
	dialer    smb.Dialer
	decrypter secrets.Decrypter

	// Events receives one audit record per attempted transfer. Optional.
	Events events.Store

	// Timeout bounds each store/SMB call. Defaults to opTimeout.
	Timeout time.Duration

	loadConfig func() (config.Credentials, error)
}

// NewService returns a Service moving bytes with the given collaborators.
func NewService(store objectstore.Mover, dialer smb.Dialer, decrypter secrets.Decrypter) *Service {
	return &Service{
		store:      store,
		dialer:     dialer,
		decrypter:  decrypter,
		Timeout:    opTimeout,
		loadConfig: config.LoadCredentials,
	}
}

// Move routes the request to the executor for its strategy. On failure the
// target may hold a partial object; nothing is rolled back.
func (s *Service) Move(ctx context.Context, req Request) error {
	strategy := req.Strategy()
	ctx = field.Context(ctx, "strategy", string(strategy))
	log.Debug().WithContext(ctx).Print("Moving file", field.M{
		"source": req.Source.String(),
		"target": req.Target.String(),
	})
	start := time.Now()
	var err error
	switch strategy {
	case StrategyS3ToS3:
		err = s.moveS3ToS3(ctx, req)
	case StrategyOnPremToS3:
		err = s.moveOnPremToS3(ctx, req)
	case StrategyS3ToOnPrem:
		err = s.moveS3ToOnPrem(ctx, req)
	case StrategyOnPremToOnPrem:
		err = s.moveOnPremToOnPrem(ctx, req)
	}
	elapsed := time.Since(start)
	outcome := events.OutcomeMoved
	if err != nil {
		outcome = events.OutcomeFailed
	}
	events.AppendBestEffort(ctx, s.Events, events.TransferEvent{
		ID:             uuid.NewString(),
		Source:         req.Source.String(),
		Target:         req.Target.String(),
		Strategy:       string(strategy),
		Outcome:        outcome,
		ElapsedSeconds: elapsed.Seconds(),
	})
	if err != nil {
		return err
	}
	log.Info().WithContext(ctx).Print("Completed transfer", field.M{
		"elapsedSeconds": elapsed.Seconds(),
	})
	return nil
}

func (s *Service) moveS3ToS3(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	src := req.Source.(location.S3Location)
	tgt := req.Target.(location.S3Location)
	if err := s.store.Move(ctx, src, tgt); err != nil {
		return errkit.Wrap(ErrTransfer, "S3 move failed", "cause", err.Error())
	}
	return nil
}

// moveOnPremToS3 retrieves the file into an in-memory buffer and streams
// the buffer into S3. Files are assumed to fit in memory; the transfer
// instance is sized accordingly.
func (s *Service) moveOnPremToS3(ctx context.Context, req Request) error {
	src := req.Source.(location.OnPremLocation)
	tgt := req.Target.(location.S3Location)

	client, creds, err := s.connect(ctx, src.Address)
	if err != nil {
		return err
	}
	defer creds.Zero()
	defer client.Close() //nolint:errcheck

	opCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	buf := &bytes.Buffer{}
	n, err := client.Retrieve(opCtx, src.Share, src.Path, buf)
	if err != nil {
		return errkit.Wrap(ErrTransfer, "failed to retrieve file from on-prem share", "cause", err.Error())
	}
	log.Debug().WithContext(ctx).Print("Retrieved file from on-prem share", field.M{"bytes": n})

	key := tgt.Key
	if key == "" || strings.HasSuffix(key, "/") {
		key += src.Base()
	}
	upCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	if err := s.store.Upload(upCtx, location.S3Location{Bucket: tgt.Bucket, Key: key}, bytes.NewReader(buf.Bytes())); err != nil {
		return errkit.Wrap(ErrTransfer, "failed to write file to S3", "cause", err.Error())
	}
	return nil
}

func (s *Service) moveS3ToOnPrem(ctx context.Context, req Request) error {
	src := req.Source.(location.S3Location)
	tgt := req.Target.(location.OnPremLocation)

	dlCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	buf := aws.NewWriteAtBuffer([]byte{})
	if err := s.store.Download(dlCtx, src, buf); err != nil {
		return errkit.Wrap(ErrTransfer, "failed to download file from S3", "cause", err.Error())
	}

	client, creds, err := s.connect(ctx, tgt.Address)
	if err != nil {
		return err
	}
	defer creds.Zero()
	defer client.Close() //nolint:errcheck

	path := tgt.Path
	if path == "" || strings.HasSuffix(path, "/") {
		path += base(src.Key)
	}
	stCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	if _, err := client.Store(stCtx, tgt.Share, path, bytes.NewReader(buf.Bytes())); err != nil {
		return errkit.Wrap(ErrTransfer, "failed to write file to on-prem share", "cause", err.Error())
	}
	return nil
}

func (s *Service) moveOnPremToOnPrem(ctx context.Context, req Request) error {
	src := req.Source.(location.OnPremLocation)
	tgt := req.Target.(location.OnPremLocation)

	srcClient, creds, err := s.connect(ctx, src.Address)
	if err != nil {
		return err
	}
	defer creds.Zero()
	defer srcClient.Close() //nolint:errcheck

	rCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	buf := &bytes.Buffer{}
	if _, err := srcClient.Retrieve(rCtx, src.Share, src.Path, buf); err != nil {
		return errkit.Wrap(ErrTransfer, "failed to retrieve file from on-prem share", "cause", err.Error())
	}

	tgtClient := srcClient
	if tgt.Address != src.Address {
		var tgtCreds secrets.Credentials
		tgtClient, tgtCreds, err = s.connect(ctx, tgt.Address)
		if err != nil {
			return err
		}
		defer tgtCreds.Zero()
		defer tgtClient.Close() //nolint:errcheck
	}

	path := tgt.Path
	if path == "" || strings.HasSuffix(path, "/") {
		path += src.Base()
	}
	wCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	if _, err := tgtClient.Store(wCtx, tgt.Share, path, bytes.NewReader(buf.Bytes())); err != nil {
		return errkit.Wrap(ErrTransfer, "failed to write file to on-prem share", "cause", err.Error())
	}
	return nil
}

// connect resolves the on-prem credentials and dials the file server. Only
// the credential ciphertexts are read from the environment; the launch
// settings are not needed here and may be absent. The returned credentials
// are owned by the caller and must be zeroed.
func (s *Service) connect(ctx context.Context, address string) (smb.Client, secrets.Credentials, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, secrets.Credentials{}, err
	}
	creds, err := secrets.Resolve(ctx, s.decrypter, cfg.EncryptedUsername, cfg.EncryptedPassword)
	if err != nil {
		return nil, secrets.Credentials{}, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	client, err := s.dialer.Dial(dialCtx, address, creds)
	if err != nil {
		creds.Zero()
		return nil, secrets.Credentials{}, errkit.Wrap(ErrTransfer, "failed to connect to on-prem server", "address", address, "cause", err.Error())
	}
	return client, creds, nil
}

func base(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
