package eyeevent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/eyeevent"
	"github.com/crestline-labs/eyelink-realtime/pkg/wire"
)

func TestDecode_BlinkEvent(t *testing.T) {
	payload := []byte{byte(eyeevent.TypeBlink)}
	payload = wire.PutU64LE(payload, 1000)
	payload = wire.PutU64LE(payload, 1200)

	ev, err := eyeevent.Decode(payload)
	require.NoError(t, err)
	require.NotNil(t, ev.Blink)
	assert.Equal(t, int64(1000), ev.Blink.StartNS)
	assert.Equal(t, int64(1200), ev.Blink.EndNS)
}

func TestDecode_OnsetEvent(t *testing.T) {
	payload := []byte{byte(eyeevent.TypeFixationOnset)}
	payload = wire.PutU64LE(payload, 555)

	ev, err := eyeevent.Decode(payload)
	require.NoError(t, err)
	require.NotNil(t, ev.FixationOnset)
	assert.Equal(t, int64(555), ev.FixationOnset.StartNS)
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := eyeevent.Decode([]byte{99})
	require.Error(t, err)

	var unknown *eyeevent.UnknownEventTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, uint8(99), unknown.Type)
}
