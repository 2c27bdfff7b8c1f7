package protocol

import (
	"bytes"
	"strconv"
	"time"
)

const (
	Separator = "\r\n"

	MaxKeySize         = 250
	MaxRelativeExptime = 60 * 60 * 24 * 30 // 30 days.

	NoReplyOption = "noreply"

	getCommandName     = "get"
	getsCommandName    = "gets"
	setCommandName     = "set"
	addCommandName     = "add"
	replaceCommandName = "replace"
	appendCommandName  = "append"
	deleteCommandName  = "delete"
)

var separatorBytes = []byte(Separator)

// MaxItemSize bounds the argument body a store command may declare. It is
// set once at process start from server configuration; the connection's
// fixed receive buffer imposes the real, tighter limit in practice.
var MaxItemSize = 1 << 20

// Parser turns raw connection bytes into a Command. It is reused across
// commands on the same connection: call Reset before parsing the next one.
//
// Parse looks for a complete header line in buf[:n] starting at offset 0.
// It reports false, leaving consumed untouched, while the line is
// incomplete; once the trailing separator is found, it copies out the
// header fields (the caller's buffer is compacted right after Parse
// returns and must not be aliased), sets consumed to the number of header
// bytes including the separator, and reports true.
type Parser struct {
	name   string
	fields [][]byte
}

// Reset clears parser state so it is ready to parse the next command.
func (p *Parser) Reset() {
	p.name = ""
	p.fields = p.fields[:0]
}

// Parse scans buf[:n] for a complete "\r\n" terminated header line.
func (p *Parser) Parse(buf []byte, n int, consumed *int) bool {
	idx := bytes.Index(buf[:n], separatorBytes)
	if idx < 0 {
		return false
	}
	line := buf[:idx]
	fields := bytes.Fields(line)
	if len(fields) > 0 {
		p.name = string(fields[0])
		p.fields = p.fields[:0]
		for _, f := range fields[1:] {
			cp := make([]byte, len(f))
			copy(cp, f)
			p.fields = append(p.fields, cp)
		}
	} else {
		p.name = ""
	}
	*consumed = idx + len(separatorBytes)
	return true
}

// Build constructs a Command from the last successfully parsed header and
// reports how many additional body bytes the caller must read before
// invoking it. An unrecognised command name or malformed fields never
// fails Build: it yields a Command whose Execute reports the error to the
// client, matching the server's contract that command dispatch always
// synchronously produces a response line.
func (p *Parser) Build(bodySize *int) Command {
	switch p.name {
	case "":
		*bodySize = 0
		return errorCommand{}
	case getCommandName:
		*bodySize = 0
		return newGetCommand(p.fields, false)
	case getsCommandName:
		*bodySize = 0
		return newGetCommand(p.fields, true)
	case setCommandName, addCommandName, replaceCommandName, appendCommandName:
		return p.buildStoreCommand(bodySize)
	case deleteCommandName:
		*bodySize = 0
		return newDeleteCommand(p.fields)
	default:
		*bodySize = 0
		return clientErrorCommand{ErrUnknownCommand}
	}
}

func (p *Parser) buildStoreCommand(bodySize *int) Command {
	const extraRequired = 3
	key, extra, noreply, err := parseKeyFields(p.fields, extraRequired)
	if err != nil {
		*bodySize = 0
		return clientErrorCommand{err}
	}
	if err := checkKey(key); err != nil {
		*bodySize = 0
		return clientErrorCommand{err}
	}
	flags64, err := strconv.ParseUint(string(extra[0]), 10, 32)
	if err != nil {
		*bodySize = 0
		return clientErrorCommand{ErrFieldsParseError}
	}
	exptime, err := strconv.ParseInt(string(extra[1]), 10, 64)
	if err != nil {
		*bodySize = 0
		return clientErrorCommand{ErrFieldsParseError}
	}
	if exptime > MaxRelativeExptime {
		exptime += time.Now().Unix()
	}
	nbytes, err := strconv.Atoi(string(extra[2]))
	if err != nil || nbytes < 0 {
		*bodySize = 0
		return clientErrorCommand{ErrFieldsParseError}
	}
	if nbytes > MaxItemSize {
		*bodySize = nbytes
		return clientErrorCommand{ErrTooLargeItem}
	}
	*bodySize = nbytes
	return &storeCommand{
		mode:    p.name,
		key:     string(key),
		flags:   uint32(flags64),
		noreply: noreply,
	}
}

func parseKeyFields(fields [][]byte, extraRequired int) (key []byte, extra [][]byte, noreply bool, err error) {
	if len(fields) < 1+extraRequired {
		err = ErrMoreFieldsRequired
		return
	}
	key = fields[0]
	extra = fields[1:][:extraRequired]
	options := fields[1:][extraRequired:]
	const maxOptions = 1
	if len(options) > maxOptions {
		err = ErrTooManyFields
		return
	}
	if len(options) != 0 {
		if string(options[0]) != NoReplyOption {
			err = ErrInvalidOption
			return
		}
		noreply = true
	}
	return
}

func isInvalidFieldChar(b byte) bool {
	return b <= ' ' || b == 127
}

func checkKey(k []byte) error {
	if len(k) == 0 {
		return ErrEmptyKey
	}
	if len(k) > MaxKeySize {
		return ErrTooLargeKey
	}
	for _, b := range k {
		if isInvalidFieldChar(b) {
			return ErrInvalidCharInKey
		}
	}
	return nil
}
