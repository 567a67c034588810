package smtpconn

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Reply is one SMTP server response. Multiline replies ("250-..." continued
// by "250 ...") are collapsed into a single Reply with one entry per line.
type Reply struct {
	Code  int
	Lines []string
}

// Text returns the reply text with continuation lines joined.
func (r Reply) Text() string {
	return strings.Join(r.Lines, " ")
}

func (r Reply) String() string {
	return fmt.Sprintf("%d %s", r.Code, r.Text())
}

// readReply reads a full (possibly multiline) reply from the server.
func readReply(br *bufio.Reader) (Reply, error) {
	var reply Reply
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return reply, err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return reply, fmt.Errorf("short reply line %q", line)
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return reply, fmt.Errorf("malformed reply line %q", line)
		}
		if reply.Code != 0 && code != reply.Code {
			return reply, fmt.Errorf("reply code changed mid-response: %d then %d", reply.Code, code)
		}
		reply.Code = code

		text := ""
		if len(line) > 4 {
			text = line[4:]
		}
		reply.Lines = append(reply.Lines, text)

		// "250-" continues, "250 " (or bare "250") terminates.
		if len(line) == 3 || line[3] == ' ' {
			return reply, nil
		}
	}
}

// Transition table: protocol stage to the reply code it requires.
const (
	stageGreeting = "greeting"
	stageEHLO     = "EHLO"
	stageStartTLS = "STARTTLS"
	stageAuth     = "AUTH LOGIN"
	stageAuthUser = "AUTH username"
	stageAuthPass = "AUTH password"
	stageMailFrom = "MAIL FROM"
	stageRcptTo   = "RCPT TO"
	stageData     = "DATA"
	stageDataEnd  = "message body"
	stageQuit     = "QUIT"
)

var requiredCode = map[string]int{
	stageGreeting: 220,
	stageEHLO:     250,
	stageStartTLS: 220,
	stageAuth:     334,
	stageAuthUser: 334,
	stageAuthPass: 235,
	stageMailFrom: 250,
	stageRcptTo:   250,
	stageData:     354,
	stageDataEnd:  250,
	stageQuit:     221,
}
