package remote

import (
	"context"
	"strings"
	"time"

	"github.com/kanisterio/errkit"
	. "gopkg.in/check.v1"

	"github.com/filescheduler/filescheduler/pkg/aws/ec2"
	"github.com/filescheduler/filescheduler/pkg/config"
	"github.com/filescheduler/filescheduler/pkg/location"
	"github.com/filescheduler/filescheduler/pkg/secrets"
)

type OrchestratorSuite struct {
	src location.Location
	tgt location.Location
}

var _ = Suite(&OrchestratorSuite{})

func (s *OrchestratorSuite) SetUpSuite(c *C) {
	var err error
	s.src, err = location.Parse("s3://bucket-test/out/hello.csv")
	c.Assert(err, IsNil)
	s.tgt, err = location.Parse("10.21.13.12/Matillion_Output/hello.csv")
	c.Assert(err, IsNil)
}

type fakeProvisioner struct {
	spec   ec2.TransferInstanceSpec
	calls  int
	id     string
	launch error
}

func (p *fakeProvisioner) RunTransferInstance(ctx context.Context, spec ec2.TransferInstanceSpec) (string, error) {
	p.calls++
	p.spec = spec
	if p.launch != nil {
		return "", p.launch
	}
	return p.id, nil
}

type staticDecrypter struct {
	err error
}

func (d *staticDecrypter) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	switch ciphertext {
	case "enc-user":
		return "svc_transfer", nil
	case "enc-pass":
		return "hunter2", nil
	}
	return "", errkit.New("unknown ciphertext")
}

func testConfig() (config.Orchestration, error) {
	return config.Orchestration{
		EncryptedUsername: "enc-user",
		EncryptedPassword: "enc-pass",
		ImageID:           config.DefaultImageID,
		InstanceProfile:   config.DefaultInstanceProfile,
		InstanceType:      "t3.micro",
		KeyName:           "transfer-key",
		SubnetID:          "subnet-0badcafe",
		SecurityGroupID:   "sg-0feedbeef",
		TransferHandler:   "main.py",
		LogBucket:         "bucket-test",
	}, nil
}

func (s *OrchestratorSuite) newOrchestrator(p Provisioner, d secrets.Decrypter) *Orchestrator {
	o := NewOrchestrator(p, d)
	o.loadConfig = testConfig
	o.now = func() time.Time { return time.Date(2023, 4, 2, 15, 4, 0, 0, time.UTC) }
	return o
}

func (s *OrchestratorSuite) TestOrchestrate(c *C) {
	p := &fakeProvisioner{id: "i-0123456789abcdef0"}
	o := s.newOrchestrator(p, &staticDecrypter{})

	h, err := o.Orchestrate(context.Background(), s.src, s.tgt, "")
	c.Assert(err, IsNil)
	c.Check(h.InstanceID, Equals, "i-0123456789abcdef0")
	c.Check(h.LaunchedAt.IsZero(), Equals, false)
	c.Check(p.calls, Equals, 1)

	c.Check(p.spec.ImageID, Equals, config.DefaultImageID)
	c.Check(p.spec.InstanceProfile, Equals, config.DefaultInstanceProfile)
	c.Check(p.spec.InstanceType, Equals, "t3.micro")
	c.Check(p.spec.SubnetID, Equals, "subnet-0badcafe")
	c.Check(p.spec.SecurityGroupID, Equals, "sg-0feedbeef")
	c.Check(p.spec.Name, Equals, "nonprod-dataanalytics-filescheduler-ec2-20230402-1504")

	// The rendered script carries the decrypted values, never the ciphertext.
	c.Check(strings.Contains(p.spec.UserData, "username=svc_transfer"), Equals, true)
	c.Check(strings.Contains(p.spec.UserData, "password=hunter2"), Equals, true)
	c.Check(strings.Contains(p.spec.UserData, "enc-user"), Equals, false)
	c.Check(strings.Contains(p.spec.UserData, "enc-pass"), Equals, false)

	info, err := ParseBootstrap(p.spec.UserData)
	c.Assert(err, IsNil)
	c.Check(info.Handler, Equals, "main.py")
	c.Check(info.Source, Equals, s.src.String())
	c.Check(info.Target, Equals, s.tgt.String())
}

func (s *OrchestratorSuite) TestOrchestrateExplicitHandler(c *C) {
	p := &fakeProvisioner{id: "i-1"}
	o := s.newOrchestrator(p, &staticDecrypter{})
	_, err := o.Orchestrate(context.Background(), s.src, s.tgt, "transfer_v2.py")
	c.Assert(err, IsNil)
	info, err := ParseBootstrap(p.spec.UserData)
	c.Assert(err, IsNil)
	c.Check(info.Handler, Equals, "transfer_v2.py")
}

func (s *OrchestratorSuite) TestProvisionFailure(c *C) {
	p := &fakeProvisioner{launch: errkit.New("InsufficientInstanceCapacity")}
	o := s.newOrchestrator(p, &staticDecrypter{})
	_, err := o.Orchestrate(context.Background(), s.src, s.tgt, "")
	c.Assert(err, NotNil)
	c.Check(errkit.Is(err, ErrProvision), Equals, true)
	// No retry: a blind relaunch could duplicate instances.
	c.Check(p.calls, Equals, 1)
}

func (s *OrchestratorSuite) TestDecryptFailureAbortsBeforeLaunch(c *C) {
	p := &fakeProvisioner{id: "i-1"}
	o := s.newOrchestrator(p, &staticDecrypter{err: errkit.New("AccessDeniedException")})
	_, err := o.Orchestrate(context.Background(), s.src, s.tgt, "")
	c.Assert(err, NotNil)
	c.Check(errkit.Is(err, secrets.ErrDecrypt), Equals, true)
	c.Check(p.calls, Equals, 0)
}

func (s *OrchestratorSuite) TestConfigFailureAbortsBeforeLaunch(c *C) {
	p := &fakeProvisioner{id: "i-1"}
	o := s.newOrchestrator(p, &staticDecrypter{})
	o.loadConfig = func() (config.Orchestration, error) {
		return config.Orchestration{}, errkit.New("Required environment variable " + config.EnvSubnet + " is not set")
	}
	_, err := o.Orchestrate(context.Background(), s.src, s.tgt, "")
	c.Assert(err, NotNil)
	c.Check(p.calls, Equals, 0)
}
