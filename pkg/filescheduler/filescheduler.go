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

package filescheduler

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	awsconfig "github.com/filescheduler/filescheduler/pkg/aws"
	"github.com/filescheduler/filescheduler/pkg/aws/kms"
	"github.com/filescheduler/filescheduler/pkg/config"
	"github.com/filescheduler/filescheduler/pkg/events"
	"github.com/filescheduler/filescheduler/pkg/field"
	"github.com/filescheduler/filescheduler/pkg/log"
	"github.com/filescheduler/filescheduler/pkg/objectstore"
	"github.com/filescheduler/filescheduler/pkg/smb"
	"github.com/filescheduler/filescheduler/pkg/transfer"
	"github.com/filescheduler/filescheduler/pkg/version"
)

const (
	sourceFlagName  = "source"
	targetFlagName  = "target"
	verboseFlagName = "verbose"
)

var (
	// Verbose indicates whether verbose output should be displayed
	Verbose bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		if Verbose {
			log.WithError(err).Print("Filescheduler failed to execute")
		}

		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "filescheduler <command>",
		Short:   "Move files between S3 and on-prem network shares",
		Version: version.VersionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if Verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&Verbose, verboseFlagName, false, "Display verbose output")
	rootCmd.AddCommand(newMoveCommand())
	return rootCmd
}

func newMoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move --source <location> --target <location>",
		Short: "Move a file between S3 and on-prem locations",
		Long: "Moves a file between two locations. A location is either an S3 path\n" +
			"(s3://bucket/key) or an on-prem share path (10.21.13.12/Share/file).\n" +
			"The on-prem network must be reachable from this host.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			source := cmd.Flag(sourceFlagName).Value.String()
			target := cmd.Flag(targetFlagName).Value.String()
			return runMove(cmd.Context(), source, target)
		},
	}
	cmd.Flags().String(sourceFlagName, "", "Source location")
	cmd.Flags().String(targetFlagName, "", "Target location")
	_ = cmd.MarkFlagRequired(sourceFlagName)
	_ = cmd.MarkFlagRequired(targetFlagName)
	return cmd
}

func runMove(ctx context.Context, source, target string) error {
	req, err := transfer.NewRequest(source, target)
	if err != nil {
		return err
	}
	svc, err := newService(ctx)
	if err != nil {
		return err
	}
	log.Info().WithContext(ctx).Print("Moving file", field.M{
		"source": req.Source.String(),
		"target": req.Target.String(),
	})
	return svc.Move(ctx, req)
}

func newService(ctx context.Context) (*transfer.Service, error) {
	awsCfg, region := awsconfig.GetConfig()
	store, err := objectstore.NewS3Store(awsCfg, region)
	if err != nil {
		return nil, err
	}
	dec, err := kms.NewDecrypter(awsCfg, region)
	if err != nil {
		return nil, err
	}
	svc := transfer.NewService(store, &smb.NetDialer{}, dec)
	if table := os.Getenv(config.EnvEventsTable); table != "" {
		st, err := events.NewDynamoStore(awsCfg, region, table)
		if err != nil {
			return nil, err
		}
		svc.Events = st
	}
	return svc, nil
}
