package bench

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinst-lab/vinst-go/pkg/scpi"
	"github.com/vinst-lab/vinst-go/pkg/visa"
)

const testBenchConfig = `
bench: test-lab
instruments:
  - name: PSU1
    identity: "PFJ Systems Inc., Virtual Voltage Source VVS1, S/N V5437"
    physics: vsource
    parameters:
      - {name: VOLT, type: numeric, access: rw, min: -30, max: 30, default: 0, unit: V}
  - name: DMM1
    identity: "PFJ Systems Inc., Virtual Multimeter VM1, S/N T347596"
    physics: multimeter
    input: PSU1
`

func startTestBench(t *testing.T) *Bench {
	t.Helper()
	config, err := Load([]byte(testBenchConfig))
	require.NoError(t, err)

	b := New(config)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop() })
	return b
}

func dialInstrument(t *testing.T, b *Bench, name string) *visa.Client {
	t.Helper()
	addr, err := b.Addr(name)
	require.NoError(t, err)

	client, err := visa.Dial(addr.String(), visa.WithTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestBenchIdentityRoundTrip(t *testing.T) {
	b := startTestBench(t)
	psu := dialInstrument(t, b, "PSU1")

	idn, err := psu.Identity()
	require.NoError(t, err)
	assert.Equal(t, "PFJ Systems Inc., Virtual Voltage Source VVS1, S/N V5437", idn)
}

func TestBenchWriteQueryScenario(t *testing.T) {
	b := startTestBench(t)
	psu := dialInstrument(t, b, "PSU1")

	require.NoError(t, psu.Write("VOLT 12.5"))

	got, err := psu.Query("VOLT?")
	require.NoError(t, err)
	assert.Equal(t, "12.5", got)

	// A rejected write is all-or-nothing: the prior value survives.
	err = psu.Write("VOLT 99")
	var cmdErr *visa.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, scpi.StatusOutOfRange, cmdErr.Status)

	got, err = psu.Query("VOLT?")
	require.NoError(t, err)
	assert.Equal(t, "12.5", got)
}

func TestBenchCompoundCommand(t *testing.T) {
	b := startTestBench(t)
	addr, err := b.Addr("PSU1")
	require.NoError(t, err)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	// Responses of a compound line arrive in command order: the write ack
	// first, then the query value.
	_, err = conn.Write([]byte("VOLT 5; VOLT?\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	for _, want := range []string{"OK", "5"} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, want, strings.TrimRight(line, "\n"))
	}
}

func TestBenchInstrumentChaining(t *testing.T) {
	b := startTestBench(t)
	psu := dialInstrument(t, b, "PSU1")
	dmm := dialInstrument(t, b, "DMM1")

	require.NoError(t, psu.Write("VOLT 18.472"))

	reading, err := dmm.Query("MEAS:VOLT?")
	require.NoError(t, err)
	v, err := strconv.ParseFloat(reading, 64)
	require.NoError(t, err)
	assert.InDelta(t, 18.472, v, 0.01)

	// Current is the source voltage over its output impedance.
	reading, err = dmm.Query("MEAS:CURR?")
	require.NoError(t, err)
	a, err := strconv.ParseFloat(reading, 64)
	require.NoError(t, err)
	assert.InDelta(t, 18.472/6.4, a, 0.01)
}

func TestBenchMalformedLine(t *testing.T) {
	b := startTestBench(t)
	psu := dialInstrument(t, b, "PSU1")

	_, err := psu.Query("?")
	var cmdErr *visa.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, scpi.StatusMalformedCommand, cmdErr.Status)

	// The session survives the malformed command.
	idn, err := psu.Identity()
	require.NoError(t, err)
	assert.NotEmpty(t, idn)
}

func TestBenchUnknownInstrumentAddr(t *testing.T) {
	b := startTestBench(t)
	_, err := b.Addr("GHOST")
	assert.True(t, errors.Is(err, ErrNotRunning))
}

func TestBenchStopIdempotent(t *testing.T) {
	config, err := Load([]byte(testBenchConfig))
	require.NoError(t, err)

	b := New(config)
	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop())

	_, err = b.Addr("PSU1")
	assert.Error(t, err)
}

func TestBenchIndependentSessions(t *testing.T) {
	b := startTestBench(t)
	first := dialInstrument(t, b, "PSU1")
	second := dialInstrument(t, b, "PSU1")

	require.NoError(t, first.Write("VOLT 3"))

	// Both sessions observe the same shared instrument state.
	got, err := second.Query("VOLT?")
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	// One session failing a command does not disturb the other.
	require.Error(t, second.Write("VOLT banana"))
	got, err = first.Query("VOLT?")
	require.NoError(t, err)
	assert.Equal(t, "3", got)
}
