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

package remote

import (
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/kanisterio/errkit"

	"github.com/filescheduler/filescheduler/pkg/location"
	"github.com/filescheduler/filescheduler/pkg/secrets"
)

// LogPrefix is the fixed object-store prefix receiving instance logs.
const LogPrefix = "ec2-log"

// The script runs unattended on first boot, so it must be self-contained:
// no external includes, and every command available on a stock Amazon Linux
// image. Credentials are substituted in plaintext; the rendered script is
// passed only as instance userdata and never logged.
var bootstrapTmpl = template.Must(template.New("bootstrap").Parse(`#!/bin/bash
sudo su

# Mount the on-prem shares
{{- range .Mounts}}
mkdir -p {{.MountPoint}}
echo "{{.UNC}}  {{.MountPoint}}  cifs  username={{$.Username}},password={{$.Password}},dir_mode=0777,file_mode=0777,noperm  0  0" >> /etc/fstab
{{- end}}
mount -a

# Install the transfer runtime
yum install python36 -y
pip install -r requirements.txt

# Timestamped log file so concurrent instances do not collide
mkdir -p /log
filename={{.Timestamp}}_log.out
echo ` + "`date`" + ` > /log/$filename

# Run the transfer
python3 {{.Handler}} --source '{{.Source}}' --target '{{.Target}}' >> /log/$filename 2>&1

# Ship the log and tear the instance down
aws s3 cp /log/$filename s3://{{.LogBucket}}/{{.LogPrefix}}/
shutdown -h now
`))

// Mount is one cifs fstab entry in the bootstrap script.
type Mount struct {
	// UNC is the //address/share form of the share root.
	UNC string
	// MountPoint is the local directory the share is mounted on.
	MountPoint string
}

type bootstrapParams struct {
	Mounts    []Mount
	Username  string
	Password  string
	Timestamp string
	Handler   string
	Source    string
	Target    string
	LogBucket string
	LogPrefix string
}

// NewBootstrapScript renders the self-contained startup script for a
// transfer instance. creds are substituted in plaintext; the caller owns
// them and zeroes them after rendering.
func NewBootstrapScript(src, tgt location.Location, handler string, creds secrets.Credentials, logBucket string, now time.Time) (string, error) {
	mounts := shareMounts(src, tgt)
	if len(mounts) == 0 {
		return "", errkit.New("neither location is on-prem; no instance is needed",
			"source", src.String(), "target", tgt.String())
	}
	p := bootstrapParams{
		Mounts:    mounts,
		Username:  creds.Username,
		Password:  creds.Password,
		Timestamp: now.Format("20060102-1504"),
		Handler:   handler,
		Source:    src.String(),
		Target:    tgt.String(),
		LogBucket: logBucket,
		LogPrefix: LogPrefix,
	}
	var b strings.Builder
	if err := bootstrapTmpl.Execute(&b, p); err != nil {
		return "", errkit.Wrap(err, "Failed to render bootstrap script")
	}
	return b.String(), nil
}

// shareMounts returns one mount per distinct on-prem share across the two
// locations, in source-then-target order.
func shareMounts(src, tgt location.Location) []Mount {
	var mounts []Mount
	seen := map[string]bool{}
	points := []string{"/mnt/drive", "/mnt/drive2"}
	for _, l := range []location.Location{src, tgt} {
		op, ok := l.(location.OnPremLocation)
		if !ok {
			continue
		}
		unc := "//" + op.Address + "/" + op.Share
		if seen[unc] {
			continue
		}
		seen[unc] = true
		mounts = append(mounts, Mount{UNC: unc, MountPoint: points[len(mounts)]})
	}
	return mounts
}

var (
	transferLineRe = regexp.MustCompile(`python3 (\S+) --source '([^']*)' --target '([^']*)'`)
	mountLineRe    = regexp.MustCompile(`^echo "(//\S+) `)
)

// BootstrapInfo is the transfer description recovered from a rendered
// script.
type BootstrapInfo struct {
	Handler string
	Source  string
	Target  string
	Mounts  []string
}

// ParseBootstrap recovers the handler name, locations and mounted shares
// from a rendered bootstrap script.
func ParseBootstrap(script string) (BootstrapInfo, error) {
	m := transferLineRe.FindStringSubmatch(script)
	if m == nil {
		return BootstrapInfo{}, errkit.New("script has no transfer invocation")
	}
	info := BootstrapInfo{Handler: m[1], Source: m[2], Target: m[3]}
	for _, line := range strings.Split(script, "\n") {
		if mm := mountLineRe.FindStringSubmatch(line); mm != nil {
			info.Mounts = append(info.Mounts, mm[1])
		}
	}
	return info, nil
}
