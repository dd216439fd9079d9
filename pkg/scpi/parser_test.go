package scpi

import (
	"errors"
	"testing"
)

func TestParseGrammar(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantVerb   Verb
		wantTarget string
		wantArgs   []string
		wantErr    bool
	}{
		{name: "BareWrite", line: "VOLT 12.5", wantVerb: VerbWrite, wantTarget: "VOLT", wantArgs: []string{"12.5"}},
		{name: "Query", line: "VOLT?", wantVerb: VerbQuery, wantTarget: "VOLT"},
		{name: "LowerCaseNormalized", line: "volt?", wantVerb: VerbQuery, wantTarget: "VOLT"},
		{name: "HierarchicalQuery", line: "MEAS:VOLT?", wantVerb: VerbQuery, wantTarget: "MEAS:VOLT"},
		{name: "CommonCommandQuery", line: "*IDN?", wantVerb: VerbQuery, wantTarget: "*IDN"},
		{name: "Reset", line: "*RST", wantVerb: VerbWrite, wantTarget: "*RST"},
		{name: "Trigger", line: "*TRG", wantVerb: VerbTrigger, wantTarget: "*TRG"},
		{name: "MultipleArgs", line: "WAV SIN 1000", wantVerb: VerbWrite, wantTarget: "WAV", wantArgs: []string{"SIN", "1000"}},
		{name: "SurroundingWhitespace", line: "  VOLT 1.0  ", wantVerb: VerbWrite, wantTarget: "VOLT", wantArgs: []string{"1.0"}},
		{name: "Empty", line: "", wantErr: true},
		{name: "WhitespaceOnly", line: "   ", wantErr: true},
		{name: "BareQuestionMark", line: "?", wantErr: true},
		{name: "QueryWithArgs", line: "VOLT? 5", wantErr: true},
		{name: "QuestionMarkInside", line: "VO?LT", wantErr: true},
		{name: "EmptyPathSegment", line: "MEAS::VOLT?", wantErr: true},
		{name: "TrailingColon", line: "MEAS: 5", wantErr: true},
		{name: "TriggerWithArgs", line: "*TRG 1", wantErr: true},
		{name: "NonASCII", line: "VOLT \xc3\xa9", wantErr: true},
		{name: "ControlByte", line: "VOLT \x07", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Parse(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) succeeded, want error", tt.line)
				}
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("Parse(%q) error = %v, want ErrMalformed", tt.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.line, err)
			}
			if req.Verb != tt.wantVerb {
				t.Errorf("verb = %v, want %v", req.Verb, tt.wantVerb)
			}
			if req.Target != tt.wantTarget {
				t.Errorf("target = %q, want %q", req.Target, tt.wantTarget)
			}
			if len(req.Args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", req.Args, tt.wantArgs)
			}
			for i := range tt.wantArgs {
				if req.Args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %q, want %q", i, req.Args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestParseLineCompound(t *testing.T) {
	reqs, err := ParseLine("VOLT 5; VOLT?;*IDN?")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	if reqs[0].Verb != VerbWrite || reqs[0].Target != "VOLT" {
		t.Errorf("first request = %v %q", reqs[0].Verb, reqs[0].Target)
	}
	if reqs[1].Verb != VerbQuery || reqs[1].Target != "VOLT" {
		t.Errorf("second request = %v %q", reqs[1].Verb, reqs[1].Target)
	}
	if reqs[2].Target != "*IDN" {
		t.Errorf("third request target = %q", reqs[2].Target)
	}
}

func TestParseLineEmptySegments(t *testing.T) {
	reqs, err := ParseLine("VOLT 5;;")
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}

	if _, err := ParseLine(";;"); err == nil {
		t.Fatal("expected error for line with no commands")
	}
}

func TestParseLineStopsAtFirstMalformed(t *testing.T) {
	if _, err := ParseLine("VOLT 5; ?"); err == nil {
		t.Fatal("expected error for malformed second command")
	}
}

func TestResponseRender(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{name: "Ack", resp: Ack(), want: "OK"},
		{name: "QueryValue", resp: QueryResult("12.5"), want: "12.5"},
		{name: "ErrorWithDetail", resp: Errorf(StatusOutOfRange, "99 > 30"), want: "ERR OUT_OF_RANGE: 99 > 30"},
		{name: "ErrorNoDetail", resp: &Response{Status: StatusSessionClosed}, want: "ERR SESSION_CLOSED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.Render(); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsErrorLine(t *testing.T) {
	if !IsErrorLine("ERR TYPE_MISMATCH: expected number") {
		t.Error("error line not recognized")
	}
	if IsErrorLine("12.5") {
		t.Error("value line misclassified as error")
	}
	if IsErrorLine("OK") {
		t.Error("ack misclassified as error")
	}
}

func TestParseErrorLine(t *testing.T) {
	status, detail, ok := ParseErrorLine("ERR OUT_OF_RANGE: 99 > 30")
	if !ok {
		t.Fatal("error line not decoded")
	}
	if status != StatusOutOfRange {
		t.Errorf("status = %v, want OUT_OF_RANGE", status)
	}
	if detail != "99 > 30" {
		t.Errorf("detail = %q", detail)
	}

	status, detail, ok = ParseErrorLine("ERR SESSION_CLOSED")
	if !ok || status != StatusSessionClosed || detail != "" {
		t.Errorf("decoded (%v, %q, %v), want (SESSION_CLOSED, \"\", true)", status, detail, ok)
	}

	if _, _, ok := ParseErrorLine("12.5"); ok {
		t.Error("value line decoded as error")
	}
	if _, _, ok := ParseErrorLine("ERR NOT_A_STATUS: x"); ok {
		t.Error("unknown status name decoded as error")
	}
}
