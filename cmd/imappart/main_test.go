package main

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/emersion/go-mbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luhaoyun888/go-imap-part"
)

const testRawMessage = "MIME-Version: 1.0\r\n" +
	"Subject: Report\r\n" +
	"From: Alice <alice@example.org>\r\n" +
	"Date: Fri, 01 Mar 2024 10:00:00 +0000\r\n" +
	"Content-Type: multipart/mixed; boundary=frontier\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"See attachment.\r\n" +
	"--frontier\r\n" +
	"Content-Type: application/octet-stream; name=report.bin\r\n" +
	"Content-Disposition: attachment; filename=report.bin\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"aGVsbG8gd29ybGQ=\r\n" +
	"--frontier--\r\n"

func newTestServer(t *testing.T) string {
	t.Helper()

	memServer := imapmemserver.New()
	user := imapmemserver.NewUser("alice", "secret")
	require.NoError(t, user.Create("INBOX", nil))
	_, err := user.Append("INBOX", strings.NewReader(testRawMessage), &imapv2.AppendOptions{})
	require.NoError(t, err)
	memServer.AddUser(user)

	server := imapserver.New(&imapserver.Options{
		NewSession: func(conn *imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return memServer.NewSession(), nil, nil
		},
		InsecureAuth: true,
		Caps:         imapv2.CapSet{imapv2.CapIMAP4rev2: {}},
	})
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	go server.Serve(ln)
	t.Cleanup(func() { server.Close() })
	return ln.Addr().String()
}

func runCmd(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--addr", addr, "--username", "alice", "--password", "secret", "--tls=false"))
	err := cmd.Execute()
	return out.String(), err
}

func TestTreeCmd(t *testing.T) {
	addr := newTestServer(t)

	out, err := runCmd(t, addr, "tree", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Subject: Report", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1 text/plain; charset=utf-8 size="), lines[1])
	assert.Contains(t, lines[2], "2 application/octet-stream")
	assert.Contains(t, lines[2], `disposition=attachment filename="report.bin"`)
}

func TestCatCmd(t *testing.T) {
	addr := newTestServer(t)

	out, err := runCmd(t, addr, "cat", "1", "2", "--decode", "--fetch-size", "4")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	out, err = runCmd(t, addr, "cat", "1", "1", "--headers")
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: text/plain; charset=utf-8\r\n\r\n", out)
}

func TestExportCmd(t *testing.T) {
	addr := newTestServer(t)
	name := filepath.Join(t.TempDir(), "parts.mbox")

	_, err := runCmd(t, addr, "export", "1", "2", name)
	require.NoError(t, err)

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()

	r := mbox.NewReader(f)
	msg, err := r.NextMessage()
	require.NoError(t, err)
	b, err := io.ReadAll(msg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "Content-Type: application/octet-stream; name=report.bin\r\n"), string(b))
	assert.Contains(t, string(b), "aGVsbG8gd29ybGQ=")

	_, err = r.NextMessage()
	assert.Equal(t, io.EOF, err)
}

func TestCmd_missingAddr(t *testing.T) {
	t.Setenv("IMAP_ADDR", "")

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"tree", "1", "--username", "alice"})
	assert.ErrorContains(t, cmd.Execute(), "missing IMAP server address")
}

func TestParseSeqNum(t *testing.T) {
	n, err := parseSeqNum("42")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), n)

	for _, s := range []string{"0", "-1", "x", "4294967296"} {
		_, err := parseSeqNum(s)
		assert.Error(t, err, s)
	}
}

func TestMboxSeparator(t *testing.T) {
	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	from, got := mboxSeparator(&imap.Envelope{
		Date: date,
		From: []imap.Address{{Mailbox: "undisclosed"}, {Mailbox: "alice", Host: "example.org"}},
	})
	assert.Equal(t, "alice@example.org", from)
	assert.Equal(t, date, got)

	from, _ = mboxSeparator(nil)
	assert.Equal(t, "MAILER-DAEMON", from)
}
