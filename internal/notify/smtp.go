package notify

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EmailSender はSMTPセッションを直接実装したメール送信。
// セッションは明示的な状態機械として進行し、ポート587ではSTARTTLSによる
// 接続アップグレード、ポート465では接続時からのTLS（implicit TLS）を使い、
// AUTH LOGINで認証する。
type EmailSender struct {
	timeout time.Duration
}

// NewEmailSender はEmailSenderを生成する。timeoutはSMTPセッション全体の制限時間。
func NewEmailSender(timeout time.Duration) *EmailSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmailSender{timeout: timeout}
}

var schemePrefix = regexp.MustCompile(`^https?://`)

// smtpState はSMTPセッション状態機械の状態を表す。
type smtpState int

const (
	// stateGreeting はサーバーグリーティング待ち。
	stateGreeting smtpState = iota
	// stateEHLO はEHLO送信。
	stateEHLO
	// stateStartTLS はSTARTTLS送信とTLSアップグレード。
	stateStartTLS
	// stateTLSEHLO はTLSアップグレード後のEHLO再送。
	stateTLSEHLO
	// stateAuth はAUTH LOGIN送信。
	stateAuth
	// stateAuthUser はユーザー名（base64）送信。
	stateAuthUser
	// stateAuthPass はパスワード（base64）送信。
	stateAuthPass
	// stateMailFrom はMAIL FROM送信。
	stateMailFrom
	// stateRcptTo はRCPT TO送信。
	stateRcptTo
	// stateData はDATAコマンド送信。
	stateData
	// stateBody はメール本文の送信と受理応答待ち。
	stateBody
	// stateQuitSent はQUIT送信済み、終了応答待ち。
	stateQuitSent
	// stateDone はセッション終了。
	stateDone
)

// Send はconfigのsmtpHost/smtpPort/smtpUser/smtpPass/toを使ってメールを送信する。
func (s *EmailSender) Send(ctx context.Context, config map[string]string, payload *Payload) error {
	host := strings.TrimRight(schemePrefix.ReplaceAllString(config["smtpHost"], ""), "/")
	port := config["smtpPort"]
	user := config["smtpUser"]
	pass := config["smtpPass"]
	to := config["to"]

	if host == "" || port == "" || user == "" || to == "" {
		return fmt.Errorf("email channel is missing smtpHost, smtpPort, smtpUser or to")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid smtpPort %q: %w", port, err)
	}
	useStartTLS := portNum == 587
	useImplicitTLS := portNum == 465

	addr := net.JoinHostPort(host, port)
	dialer := &net.Dialer{Timeout: s.timeout}

	var conn net.Conn
	if useImplicitTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("SMTP connection failed: %w", err)
	}

	// セッション全体のデッドライン
	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		conn.Close()
		return err
	}

	session := &smtpSession{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		host:        host,
		timeout:     s.timeout,
		useStartTLS: useStartTLS,
		user:        user,
		pass:        pass,
		to:          to,
		body:        buildEmailBody(user, to, payload),
	}
	// STARTTLSアップグレード後はsession.connが差し替わるため、そちらを閉じる
	defer func() { session.conn.Close() }()

	return session.run()
}

// run は状態機械をstateGreetingからstateDoneまで進める。
// いずれかの遷移が失敗した時点でセッションを中断しエラーを返す。
func (s *smtpSession) run() error {
	state := stateGreeting
	for state != stateDone {
		next, err := s.step(state)
		if err != nil {
			return err
		}
		state = next
	}
	return nil
}

// step は現在の状態の処理を実行し、次の状態を返す。
func (s *smtpSession) step(state smtpState) (smtpState, error) {
	switch state {
	case stateGreeting:
		if _, err := s.readReply(); err != nil {
			return stateDone, err
		}
		return stateEHLO, nil

	case stateEHLO:
		if err := s.command("EHLO namedrop"); err != nil {
			return stateDone, err
		}
		if s.useStartTLS {
			return stateStartTLS, nil
		}
		return stateAuth, nil

	case stateStartTLS:
		if err := s.command("STARTTLS"); err != nil {
			return stateDone, err
		}
		// TLSへアップグレードし、EHLOを再送する
		tlsConn := tls.Client(s.conn, &tls.Config{ServerName: s.host})
		if err := tlsConn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
			return stateDone, err
		}
		s.conn = tlsConn
		s.reader = bufio.NewReader(tlsConn)
		return stateTLSEHLO, nil

	case stateTLSEHLO:
		if err := s.command("EHLO namedrop"); err != nil {
			return stateDone, err
		}
		return stateAuth, nil

	case stateAuth:
		if err := s.command("AUTH LOGIN"); err != nil {
			return stateDone, err
		}
		return stateAuthUser, nil

	case stateAuthUser:
		if err := s.command(base64.StdEncoding.EncodeToString([]byte(s.user))); err != nil {
			return stateDone, err
		}
		return stateAuthPass, nil

	case stateAuthPass:
		if err := s.command(base64.StdEncoding.EncodeToString([]byte(s.pass))); err != nil {
			return stateDone, err
		}
		return stateMailFrom, nil

	case stateMailFrom:
		if err := s.command(fmt.Sprintf("MAIL FROM:<%s>", s.user)); err != nil {
			return stateDone, err
		}
		return stateRcptTo, nil

	case stateRcptTo:
		if err := s.command(fmt.Sprintf("RCPT TO:<%s>", s.to)); err != nil {
			return stateDone, err
		}
		return stateData, nil

	case stateData:
		if err := s.command("DATA"); err != nil {
			return stateDone, err
		}
		return stateBody, nil

	case stateBody:
		if err := s.write(s.body); err != nil {
			return stateDone, err
		}
		if _, err := s.readReply(); err != nil {
			return stateDone, err
		}
		return stateQuitSent, nil

	case stateQuitSent:
		if err := s.write("QUIT\r\n"); err != nil {
			return stateDone, err
		}
		// メールは受理済みのため、終了応答のエラーは結果に影響させない
		_, _ = s.readReply()
		return stateDone, nil

	default:
		return stateDone, fmt.Errorf("invalid SMTP session state %d", state)
	}
}

// buildEmailBody はヘッダーと本文を組み立て、終端の"."行まで含めて返す。
func buildEmailBody(from, to string, payload *Payload) string {
	lines := []string{
		fmt.Sprintf("From: NameDrop <%s>", from),
		"To: " + to,
		"Subject: " + payload.Message,
		"Content-Type: text/plain; charset=utf-8",
		"",
		payload.Message,
		"",
		"Domain: " + payload.Domain,
		fmt.Sprintf("Status: %s -> %s", previousOrUnknown(payload.PreviousStatus), payload.NewStatus),
	}
	if payload.ExpiryDate != "" {
		lines = append(lines, "Expiry: "+payload.ExpiryDate)
	}
	if payload.Registrar != "" {
		lines = append(lines, "Registrar: "+payload.Registrar)
	}
	if len(payload.Tags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(payload.Tags, ", "))
	}
	lines = append(lines, "", "-- NameDrop", ".")
	return strings.Join(lines, "\r\n") + "\r\n"
}

// smtpSession はSMTPセッションの接続と状態機械の入力を保持する。
type smtpSession struct {
	conn        net.Conn
	reader      *bufio.Reader
	host        string
	timeout     time.Duration
	useStartTLS bool
	user        string
	pass        string
	to          string
	body        string
}

func (s *smtpSession) write(data string) error {
	_, err := s.conn.Write([]byte(data))
	return err
}

// command はコマンドを送信して応答コードを確認する。
func (s *smtpSession) command(cmd string) error {
	if err := s.write(cmd + "\r\n"); err != nil {
		return err
	}
	_, err := s.readReply()
	return err
}

// readReply はSMTP応答を読み取る。"250-"形式の継続行は最終行まで読み飛ばし、
// コード400以上の応答はエラーとして返す。
func (s *smtpSession) readReply() (int, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("SMTP read failed: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return 0, fmt.Errorf("malformed SMTP reply: %q", line)
		}

		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return 0, fmt.Errorf("malformed SMTP reply: %q", line)
		}

		// 継続行（"250-..."）は最終行まで読み進める
		if len(line) > 3 && line[3] == '-' {
			continue
		}

		if code >= 400 {
			return code, fmt.Errorf("SMTP error %d: %s", code, line)
		}
		return code, nil
	}
}

// compile-time interface check
var _ Sender = (*EmailSender)(nil)
