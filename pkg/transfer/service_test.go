package transfer

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/kanisterio/errkit"
	. "gopkg.in/check.v1"

	"github.com/filescheduler/filescheduler/pkg/config"
	"github.com/filescheduler/filescheduler/pkg/events"
	"github.com/filescheduler/filescheduler/pkg/location"
	"github.com/filescheduler/filescheduler/pkg/secrets"
	"github.com/filescheduler/filescheduler/pkg/smb"
)

type ServiceSuite struct{}

var _ = Suite(&ServiceSuite{})

// fakeMover is an in-memory object store keyed by "bucket/key".
type fakeMover struct {
	objects map[string][]byte
	fail    error
}

func newFakeMover() *fakeMover {
	return &fakeMover{objects: map[string][]byte{}}
}

func (m *fakeMover) Move(ctx context.Context, src, dst location.S3Location) error {
	if m.fail != nil {
		return m.fail
	}
	b, ok := m.objects[src.Bucket+"/"+src.Key]
	if !ok {
		return errkit.New("no such key")
	}
	m.objects[dst.Bucket+"/"+dst.Key] = b
	delete(m.objects, src.Bucket+"/"+src.Key)
	return nil
}

func (m *fakeMover) Upload(ctx context.Context, dst location.S3Location, body io.Reader) error {
	if m.fail != nil {
		return m.fail
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[dst.Bucket+"/"+dst.Key] = b
	return nil
}

func (m *fakeMover) Download(ctx context.Context, src location.S3Location, w io.WriterAt) error {
	if m.fail != nil {
		return m.fail
	}
	b, ok := m.objects[src.Bucket+"/"+src.Key]
	if !ok {
		return errkit.New("no such key")
	}
	_, err := w.WriteAt(b, 0)
	return err
}

// fakeShare is an in-memory SMB server keyed by "share/path".
type fakeShare struct {
	files    map[string][]byte
	dials    int
	dialErr  error
	creds    secrets.Credentials
	lastAddr string
}

func newFakeShare() *fakeShare {
	return &fakeShare{files: map[string][]byte{}}
}

func (f *fakeShare) Dial(ctx context.Context, address string, creds secrets.Credentials) (smb.Client, error) {
	f.dials++
	f.lastAddr = address
	f.creds = creds
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return &fakeSMBClient{share: f}, nil
}

type fakeSMBClient struct {
	share *fakeShare
}

func (c *fakeSMBClient) Retrieve(ctx context.Context, share, path string, w io.Writer) (int64, error) {
	b, ok := c.share.files[share+"/"+path]
	if !ok {
		return 0, errkit.New("no such file", "share", share, "path", path)
	}
	n, err := w.Write(b)
	return int64(n), err
}

func (c *fakeSMBClient) Store(ctx context.Context, share, path string, r io.Reader) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	c.share.files[share+"/"+path] = b
	return int64(len(b)), nil
}

func (c *fakeSMBClient) Close() error { return nil }

type staticDecrypter struct{}

func (d *staticDecrypter) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	switch ciphertext {
	case "enc-user":
		return "svc_transfer", nil
	case "enc-pass":
		return "hunter2", nil
	}
	return "", errkit.New("unknown ciphertext")
}

type recordingStore struct {
	appended []events.TransferEvent
}

func (r *recordingStore) Append(ctx context.Context, ev events.TransferEvent) error {
	r.appended = append(r.appended, ev)
	return nil
}

func (s *ServiceSuite) newService(m *fakeMover, sh *fakeShare) (*Service, *recordingStore) {
	svc := NewService(m, sh, &staticDecrypter{})
	svc.loadConfig = func() (config.Credentials, error) {
		return config.Credentials{
			EncryptedUsername: "enc-user",
			EncryptedPassword: "enc-pass",
		}, nil
	}
	rec := &recordingStore{}
	svc.Events = rec
	return svc, rec
}

func (s *ServiceSuite) TestMoveS3ToS3(c *C) {
	m := newFakeMover()
	m.objects["bucket-a/out/hello.csv"] = []byte("payload")
	svc, rec := s.newService(m, newFakeShare())

	req, err := NewRequest("s3://bucket-a/out/hello.csv", "s3://bucket-b/in/hello.csv")
	c.Assert(err, IsNil)
	c.Assert(svc.Move(context.Background(), req), IsNil)

	c.Check(m.objects["bucket-b/in/hello.csv"], DeepEquals, []byte("payload"))
	_, stillThere := m.objects["bucket-a/out/hello.csv"]
	c.Check(stillThere, Equals, false)

	c.Assert(rec.appended, HasLen, 1)
	c.Check(rec.appended[0].Outcome, Equals, events.OutcomeMoved)
	c.Check(rec.appended[0].Strategy, Equals, string(StrategyS3ToS3))
}

func (s *ServiceSuite) TestMoveS3ToS3Failure(c *C) {
	m := newFakeMover()
	m.fail = errkit.New("AccessDenied")
	svc, rec := s.newService(m, newFakeShare())

	req, err := NewRequest("s3://bucket-a/x", "s3://bucket-b/x")
	c.Assert(err, IsNil)
	err = svc.Move(context.Background(), req)
	c.Assert(err, NotNil)
	c.Check(errkit.Is(err, ErrTransfer), Equals, true)
	c.Assert(rec.appended, HasLen, 1)
	c.Check(rec.appended[0].Outcome, Equals, events.OutcomeFailed)
}

func (s *ServiceSuite) TestMoveOnPremToS3(c *C) {
	m := newFakeMover()
	sh := newFakeShare()
	sh.files["Matillion_Output/out/hello.csv"] = []byte("payload")
	svc, _ := s.newService(m, sh)

	req, err := NewRequest("10.21.13.12/Matillion_Output/out/hello.csv", "s3://bucket-test")
	c.Assert(err, IsNil)
	c.Assert(svc.Move(context.Background(), req), IsNil)

	// With no target key the object lands under the source file name.
	c.Check(m.objects["bucket-test/hello.csv"], DeepEquals, []byte("payload"))
	c.Check(sh.lastAddr, Equals, "10.21.13.12")
	c.Check(sh.creds.Username, Equals, "svc_transfer")
}

func (s *ServiceSuite) TestMoveOnPremToS3ExplicitKey(c *C) {
	m := newFakeMover()
	sh := newFakeShare()
	sh.files["Matillion_Output/hello.csv"] = []byte("payload")
	svc, _ := s.newService(m, sh)

	req, err := NewRequest("10.21.13.12/Matillion_Output/hello.csv", "s3://bucket-test/landing/renamed.csv")
	c.Assert(err, IsNil)
	c.Assert(svc.Move(context.Background(), req), IsNil)
	c.Check(m.objects["bucket-test/landing/renamed.csv"], DeepEquals, []byte("payload"))
}

func (s *ServiceSuite) TestMoveOnPremToS3RetrieveFailure(c *C) {
	svc, _ := s.newService(newFakeMover(), newFakeShare())
	req, err := NewRequest("10.21.13.12/Matillion_Output/missing.csv", "s3://bucket-test")
	c.Assert(err, IsNil)
	err = svc.Move(context.Background(), req)
	c.Assert(err, NotNil)
	c.Check(errkit.Is(err, ErrTransfer), Equals, true)
}

func (s *ServiceSuite) TestMoveOnPremToS3DialFailure(c *C) {
	sh := newFakeShare()
	sh.dialErr = errkit.New("connection refused")
	svc, _ := s.newService(newFakeMover(), sh)
	req, err := NewRequest("10.21.13.12/Matillion_Output/hello.csv", "s3://bucket-test")
	c.Assert(err, IsNil)
	err = svc.Move(context.Background(), req)
	c.Assert(err, NotNil)
	c.Check(errkit.Is(err, ErrTransfer), Equals, true)
}

func (s *ServiceSuite) TestMoveS3ToOnPrem(c *C) {
	m := newFakeMover()
	m.objects["bucket-test/out/hello.csv"] = []byte("payload")
	sh := newFakeShare()
	svc, _ := s.newService(m, sh)

	req, err := NewRequest("s3://bucket-test/out/hello.csv", "10.21.13.12/Matillion_Output/in/")
	c.Assert(err, IsNil)
	c.Assert(svc.Move(context.Background(), req), IsNil)
	c.Check(sh.files["Matillion_Output/in/hello.csv"], DeepEquals, []byte("payload"))
}

func (s *ServiceSuite) TestMoveOnPremToOnPrem(c *C) {
	sh := newFakeShare()
	sh.files["Matillion_Output/out/hello.csv"] = []byte("payload")
	svc, _ := s.newService(newFakeMover(), sh)

	req, err := NewRequest("10.21.13.12/Matillion_Output/out/hello.csv", "10.21.13.12/Matillion_Output/archive/hello.csv")
	c.Assert(err, IsNil)
	c.Assert(svc.Move(context.Background(), req), IsNil)
	c.Check(sh.files["Matillion_Output/archive/hello.csv"], DeepEquals, []byte("payload"))
	// Same server, single connection.
	c.Check(sh.dials, Equals, 1)
}

func (s *ServiceSuite) TestMoveOnPremToOnPremAcrossServers(c *C) {
	sh := newFakeShare()
	sh.files["Matillion_Output/hello.csv"] = []byte("payload")
	svc, _ := s.newService(newFakeMover(), sh)

	req, err := NewRequest("10.21.13.12/Matillion_Output/hello.csv", "10.21.13.13/Archive/hello.csv")
	c.Assert(err, IsNil)
	c.Assert(svc.Move(context.Background(), req), IsNil)
	c.Check(sh.files["Archive/hello.csv"], DeepEquals, []byte("payload"))
	c.Check(sh.dials, Equals, 2)
}

func (s *ServiceSuite) TestMoveSourceBytesPreservedOnUploadFailure(c *C) {
	// A failed upload leaves the source untouched; there is no rollback,
	// only absence of the target object.
	m := newFakeMover()
	m.fail = errkit.New("upload failed")
	sh := newFakeShare()
	sh.files["Matillion_Output/hello.csv"] = []byte("payload")
	svc, _ := s.newService(m, sh)

	req, err := NewRequest("10.21.13.12/Matillion_Output/hello.csv", "s3://bucket-test")
	c.Assert(err, IsNil)
	c.Assert(svc.Move(context.Background(), req), NotNil)
	c.Check(sh.files["Matillion_Output/hello.csv"], DeepEquals, []byte("payload"))
	c.Check(m.objects, HasLen, 0)
}

func (s *ServiceSuite) TestRetrieveSeeksToStart(c *C) {
	// The uploaded bytes must match the retrieved file exactly, i.e. the
	// buffer is re-read from the start after the retrieve.
	m := newFakeMover()
	sh := newFakeShare()
	payload := bytes.Repeat([]byte("abc123"), 1024)
	sh.files["Matillion_Output/big.bin"] = payload
	svc, _ := s.newService(m, sh)

	req, err := NewRequest("10.21.13.12/Matillion_Output/big.bin", "s3://bucket-test")
	c.Assert(err, IsNil)
	c.Assert(svc.Move(context.Background(), req), IsNil)
	c.Check(m.objects["bucket-test/big.bin"], DeepEquals, payload)
}

func (s *ServiceSuite) TestMoveNeedsOnlyCredentialVariables(c *C) {
	// The in-process path runs on hosts where none of the EC2 launch
	// variables are set. Only the ciphertexts may be required.
	for _, k := range []string{config.EnvPEMKey, config.EnvInstanceType, config.EnvSecurityGroup, config.EnvSubnet, config.EnvTransferHandler} {
		c.Assert(os.Unsetenv(k), IsNil)
	}
	c.Assert(os.Setenv(config.EnvADUsername, "enc-user"), IsNil)
	c.Assert(os.Setenv(config.EnvADKey, "enc-pass"), IsNil)
	defer os.Unsetenv(config.EnvADUsername) //nolint:errcheck
	defer os.Unsetenv(config.EnvADKey)      //nolint:errcheck

	m := newFakeMover()
	sh := newFakeShare()
	sh.files["Matillion_Output/report.csv"] = []byte("rows")
	// NewService keeps its default environment-backed config loader.
	svc := NewService(m, sh, &staticDecrypter{})

	req, err := NewRequest("10.21.13.12/Matillion_Output/report.csv", "s3://bucket-test/in/report.csv")
	c.Assert(err, IsNil)
	c.Assert(svc.Move(context.Background(), req), IsNil)
	c.Check(m.objects["bucket-test/in/report.csv"], DeepEquals, []byte("rows"))
}
