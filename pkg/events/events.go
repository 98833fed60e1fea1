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

// Package events persists the transfer audit trail. The store is
// append-only; the core never reads it back for decision-making, and a
// failed append is logged but never fails the transfer that produced it.
package events

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"

	awsconfig "github.com/filescheduler/filescheduler/pkg/aws"
	"github.com/filescheduler/filescheduler/pkg/field"
	"github.com/filescheduler/filescheduler/pkg/log"
)

// Outcome of a processed transfer.
type Outcome string

const (
	OutcomeMoved     Outcome = "moved"
	OutcomeDelegated Outcome = "delegated"
	OutcomeFailed    Outcome = "failed"
	// OutcomeNotRequired marks a dispatch that needed no work from this
	// system; no bytes were moved and no instance was launched.
	OutcomeNotRequired Outcome = "not-required"
)

// TransferEvent is one audit record for a processed transfer.
type TransferEvent struct {
	ID             string  `dynamodbav:"id"`
	Source         string  `dynamodbav:"source"`
	Target         string  `dynamodbav:"target"`
	Strategy       string  `dynamodbav:"strategy"`
	InstanceID     string  `dynamodbav:"instance_id,omitempty"`
	Outcome        Outcome `dynamodbav:"outcome"`
	ElapsedSeconds float64 `dynamodbav:"elapsed_seconds"`
	CreatedAt      string  `dynamodbav:"created_at"`
}

// Store appends transfer events.
type Store interface {
	Append(ctx context.Context, ev TransferEvent) error
}

// DynamoStore implements Store on a DynamoDB table.
type DynamoStore struct {
	ddb   dynamodbiface.DynamoDBAPI
	table string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore returns a Store writing to the given table.
func NewDynamoStore(awsConfig *aws.Config, region, table string) (*DynamoStore, error) {
	s, err := awsconfig.NewSession(awsConfig, region)
	if err != nil {
		return nil, err
	}
	return &DynamoStore{ddb: dynamodb.New(s), table: table}, nil
}

func (s *DynamoStore) Append(ctx context.Context, ev TransferEvent) error {
	if ev.CreatedAt == "" {
		ev.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	item, err := dynamodbattribute.MarshalMap(ev)
	if err != nil {
		return errors.Wrap(err, "Failed to marshal transfer event")
	}
	_, err = s.ddb.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return errors.Wrap(err, "Failed to append transfer event")
}

// AppendBestEffort logs and swallows append failures. Auditing must not
// fail a transfer that already happened.
func AppendBestEffort(ctx context.Context, s Store, ev TransferEvent) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, ev); err != nil {
		log.Error().WithContext(ctx).WithError(err).Print("Failed to record transfer event", field.M{"eventID": ev.ID})
	}
}
