package notify

import (
	"bufio"
	"context"
	"encoding/base64"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSMTPServer は平文SMTPセッションを再生するテスト用サーバー。
// クライアントからの行を記録し、スクリプトどおりに応答する。
type fakeSMTPServer struct {
	listener net.Listener
	mu       sync.Mutex
	commands []string
	rcptCode string
	wg       sync.WaitGroup
}

func newFakeSMTPServer(t *testing.T) *fakeSMTPServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("リスナーの起動に失敗しました: %v", err)
	}
	server := &fakeSMTPServer{listener: listener, rcptCode: "250 OK"}
	server.wg.Add(1)
	go server.serve()
	t.Cleanup(func() {
		listener.Close()
		server.wg.Wait()
	})
	return server
}

func (s *fakeSMTPServer) addr() (host, port string) {
	host, port, _ = net.SplitHostPort(s.listener.Addr().String())
	return host, port
}

func (s *fakeSMTPServer) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *fakeSMTPServer) record(line string) {
	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()
}

func (s *fakeSMTPServer) serve() {
	defer s.wg.Done()
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	write := func(reply string) {
		conn.Write([]byte(reply + "\r\n"))
	}

	write("220 fake.example.com ESMTP ready")

	inData := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if inData {
			s.record("DATA:" + line)
			if line == "." {
				inData = false
				write("250 queued")
			}
			continue
		}

		s.record(line)
		switch {
		case strings.HasPrefix(line, "EHLO"):
			// 継続行付きのマルチライン応答
			write("250-fake.example.com")
			write("250-SIZE 35882577")
			write("250 AUTH LOGIN PLAIN")
		case line == "AUTH LOGIN":
			write("334 VXNlcm5hbWU6")
		case strings.HasPrefix(line, "MAIL FROM:"):
			write("250 OK")
		case strings.HasPrefix(line, "RCPT TO:"):
			write(s.rcptCode)
		case line == "DATA":
			inData = true
			write("354 end with .")
		case line == "QUIT":
			write("221 bye")
			return
		default:
			// AUTH LOGINのbase64応答など
			write("235 accepted")
		}
	}
}

func TestEmailSender_Send(t *testing.T) {
	server := newFakeSMTPServer(t)
	host, port := server.addr()

	sender := NewEmailSender(5 * time.Second)
	config := map[string]string{
		"smtpHost": "http://" + host + "/",
		"smtpPort": port,
		"smtpUser": "alerts@example.com",
		"smtpPass": "secret",
		"to":       "owner@example.com",
	}

	if err := sender.Send(context.Background(), config, testPayload()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	commands := server.recorded()
	joined := strings.Join(commands, "\n")

	if !strings.Contains(joined, "EHLO namedrop") {
		t.Error("EHLO namedrop が送信されていません")
	}
	if !strings.Contains(joined, "AUTH LOGIN") {
		t.Error("AUTH LOGIN が送信されていません")
	}
	wantUser := base64.StdEncoding.EncodeToString([]byte("alerts@example.com"))
	if !strings.Contains(joined, wantUser) {
		t.Error("ユーザー名のbase64が送信されていません")
	}
	if !strings.Contains(joined, "MAIL FROM:<alerts@example.com>") {
		t.Error("MAIL FROM が送信されていません")
	}
	if !strings.Contains(joined, "RCPT TO:<owner@example.com>") {
		t.Error("RCPT TO が送信されていません")
	}
	if !strings.Contains(joined, "DATA:Subject: \U0001F7E2 example.com is now available!") {
		t.Error("Subjectヘッダーが送信されていません")
	}
	if !strings.Contains(joined, "DATA:.") {
		t.Error("終端の.が送信されていません")
	}
	if !strings.Contains(joined, "QUIT") {
		t.Error("QUIT が送信されていません")
	}
}

// セッションが状態機械の順序どおりにコマンドを発行し、QUITで終了することを検証
func TestEmailSender_Send_CommandSequence(t *testing.T) {
	server := newFakeSMTPServer(t)
	host, port := server.addr()

	sender := NewEmailSender(5 * time.Second)
	config := map[string]string{
		"smtpHost": host,
		"smtpPort": port,
		"smtpUser": "alerts@example.com",
		"smtpPass": "secret",
		"to":       "owner@example.com",
	}

	if err := sender.Send(context.Background(), config, testPayload()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// 本文行を除いたコマンド列が遷移順になっていること
	var commands []string
	for _, cmd := range server.recorded() {
		if !strings.HasPrefix(cmd, "DATA:") {
			commands = append(commands, cmd)
		}
	}

	want := []string{
		"EHLO namedrop",
		"AUTH LOGIN",
		base64.StdEncoding.EncodeToString([]byte("alerts@example.com")),
		base64.StdEncoding.EncodeToString([]byte("secret")),
		"MAIL FROM:<alerts@example.com>",
		"RCPT TO:<owner@example.com>",
		"DATA",
		"QUIT",
	}
	if len(commands) != len(want) {
		t.Fatalf("commands = %v, want %v", commands, want)
	}
	for i, cmd := range want {
		if commands[i] != cmd {
			t.Errorf("commands[%d] = %q, want %q", i, commands[i], cmd)
		}
	}
}

func TestEmailSender_Send_RcptRejected(t *testing.T) {
	server := newFakeSMTPServer(t)
	server.rcptCode = "550 mailbox unavailable"
	host, port := server.addr()

	sender := NewEmailSender(5 * time.Second)
	config := map[string]string{
		"smtpHost": host,
		"smtpPort": port,
		"smtpUser": "alerts@example.com",
		"smtpPass": "secret",
		"to":       "nobody@example.com",
	}

	err := sender.Send(context.Background(), config, testPayload())
	if err == nil {
		t.Fatal("Send() error = nil, want エラー")
	}
	if !strings.Contains(err.Error(), "SMTP error 550") {
		t.Errorf("err = %v, want SMTP error 550", err)
	}
	for _, cmd := range server.recorded() {
		if cmd == "DATA" {
			t.Error("RCPT拒否後にDATAが送信されました")
		}
	}
}

func TestEmailSender_Send_MissingConfig(t *testing.T) {
	sender := NewEmailSender(time.Second)
	err := sender.Send(context.Background(), map[string]string{"smtpHost": "mail.example.com"}, testPayload())
	if err == nil {
		t.Fatal("Send() error = nil, want エラー")
	}
}
