// Package smb provides the on-prem share client used by the transfer
// executors. It speaks SMB2/3 directly so no kernel cifs mount is needed in
// the calling environment.
package smb

import (
	"context"
	"io"
	"net"
	"strings"

	"github.com/hirochachacha/go-smb2"
	"github.com/pkg/errors"

	"github.com/filescheduler/filescheduler/pkg/secrets"
)

const (
	// SMB over direct TCP.
	port = "445"
)

// Dialer opens an authenticated session against an on-prem file server.
type Dialer interface {
	Dial(ctx context.Context, address string, creds secrets.Credentials) (Client, error)
}

// Client is a connected SMB session.
type Client interface {
	// Retrieve copies the file at share/path into w and returns the
	// number of bytes copied.
	Retrieve(ctx context.Context, share, path string, w io.Writer) (int64, error)
	// Store writes r to the file at share/path, creating or truncating it.
	Store(ctx context.Context, share, path string, r io.Reader) (int64, error)
	Close() error
}

// NetDialer is the production Dialer. The zero value is usable.
type NetDialer struct {
	// Domain is the AD domain used for NTLM authentication. Optional.
	Domain string
}

var _ Dialer = (*NetDialer)(nil)

func (d *NetDialer) Dial(ctx context.Context, address string, creds secrets.Credentials) (Client, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", net.JoinHostPort(address, port))
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to connect to on-prem server %s", address)
	}
	sd := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     creds.Username,
			Password: creds.Password,
			Domain:   d.Domain,
		},
	}
	sess, err := sd.DialContext(ctx, conn)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, errors.Wrapf(err, "SMB session setup failed for %s", address)
	}
	return &client{conn: conn, sess: sess}, nil
}

type client struct {
	conn net.Conn
	sess *smb2.Session
}

func (c *client) Retrieve(ctx context.Context, share, path string, w io.Writer) (int64, error) {
	fs, err := c.sess.Mount(share)
	if err != nil {
		return 0, errors.Wrapf(err, "Failed to mount share %s", share)
	}
	defer fs.Umount() //nolint:errcheck
	fs = fs.WithContext(ctx)
	f, err := fs.Open(toSMBPath(path))
	if err != nil {
		return 0, errors.Wrapf(err, "Failed to open %s on share %s", path, share)
	}
	defer f.Close() //nolint:errcheck
	n, err := io.Copy(w, f)
	return n, errors.Wrapf(err, "Failed to retrieve %s from share %s", path, share)
}

func (c *client) Store(ctx context.Context, share, path string, r io.Reader) (int64, error) {
	fs, err := c.sess.Mount(share)
	if err != nil {
		return 0, errors.Wrapf(err, "Failed to mount share %s", share)
	}
	defer fs.Umount() //nolint:errcheck
	fs = fs.WithContext(ctx)
	f, err := fs.Create(toSMBPath(path))
	if err != nil {
		return 0, errors.Wrapf(err, "Failed to create %s on share %s", path, share)
	}
	defer f.Close() //nolint:errcheck
	n, err := io.Copy(f, r)
	return n, errors.Wrapf(err, "Failed to write %s to share %s", path, share)
}

func (c *client) Close() error {
	err := c.sess.Logoff()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// toSMBPath converts the slash-separated location path into the separator
// the wire protocol expects.
func toSMBPath(path string) string {
	return strings.ReplaceAll(path, "/", `\`)
}
