package stripestore

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/stripestore/internal/testutil"
	journals "github.com/i5heu/stripestore/internal/wal"
	"github.com/i5heu/stripestore/pkg/model"
)

const hello = "HELLOWORLD1234"

var layouts = []Layout{LayoutMirror, LayoutStripe}

func newTestStore(t *testing.T, conf Config) (*Store, *testutil.LogBuffer) {
	t.Helper()
	log, logs := testutil.NewLogger()
	conf.Logger = log
	s, err := New(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, logs
}

func hasWarning(logs *testutil.LogBuffer) bool {
	return logs.HasLevel(slog.LevelWarn)
}

func TestStore_EndToEnd(t *testing.T) {
	for _, layout := range layouts {
		t.Run(string(layout), func(t *testing.T) {
			s, _ := newTestStore(t, Config{Layout: layout})
			require.Equal(t, 8, s.StripeWidth())

			require.NoError(t, s.Write(hello, 5))

			got, err := s.Read(5)
			require.NoError(t, err)
			assert.Equal(t, hello, got)

			require.NoError(t, s.Erase(5))
			_, err = s.Read(5)
			assert.ErrorIs(t, err, ErrInsufficientRedundancy)

			// written again after erase
			require.NoError(t, s.Write("ABCDEFGHIJKLMN", 5))
			got, err = s.Read(5)
			require.NoError(t, err)
			assert.Equal(t, "ABCDEFGHIJKLMN", got)
		})
	}
}

func TestStore_UnwrittenAddress(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	_, err := s.Read(0)
	assert.ErrorIs(t, err, ErrInsufficientRedundancy)
	assert.NoError(t, s.Erase(0))
}

func TestStore_OffsetsUseStripeWidth(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	require.NoError(t, s.Write(hello, 5))

	for _, d := range s.Disks() {
		assert.Equal(t, 48, d.Len())
		assert.Equal(t, model.Block("HE"), d.ReadBlock(40))
		assert.True(t, d.ReadBlock(39).IsHole())
	}
}

func TestStore_AddressIsolation(t *testing.T) {
	for _, layout := range layouts {
		t.Run(string(layout), func(t *testing.T) {
			s, _ := newTestStore(t, Config{Layout: layout})
			require.NoError(t, s.Write(hello, 3))

			snapshot := func() [][]model.Block {
				var out [][]model.Block
				for _, d := range s.Disks() {
					var blocks []model.Block
					for i := 0; i < s.StripeWidth(); i++ {
						blocks = append(blocks, d.ReadBlock(3*s.StripeWidth()+i))
					}
					out = append(out, blocks)
				}
				return out
			}

			before := snapshot()
			require.NoError(t, s.Write("ZZZZZZZZZZZZZZ", 4))
			require.NoError(t, s.Write("YYYYYYYYYYYYYY", 2))
			require.NoError(t, s.Erase(1))
			assert.Equal(t, before, snapshot())

			got, err := s.Read(3)
			require.NoError(t, err)
			assert.Equal(t, hello, got)
		})
	}
}

func TestStore_EraseIdempotent(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	require.NoError(t, s.Write(hello, 5))

	require.NoError(t, s.Erase(5))
	once := s.Stats()
	require.NoError(t, s.Erase(5))
	twice := s.Stats()

	for i := range once {
		assert.Equal(t, once[i].Length, twice[i].Length)
		assert.Equal(t, once[i].Holes, twice[i].Holes)
		assert.Equal(t, once[i].Length, once[i].Holes, "disk %d should be all holes", i)
	}
}

func TestStore_DegradedReadRecovers(t *testing.T) {
	for _, layout := range layouts {
		for hole := 0; hole < 7; hole++ {
			s, logs := newTestStore(t, Config{Layout: layout})
			require.NoError(t, s.Write(hello, 5))

			// disk `hole` loses the data block it serves
			s.Disks()[hole].EraseBlock(5*s.StripeWidth() + hole)

			res, err := s.ReadStripe(5)
			require.NoError(t, err)
			assert.Equal(t, hello, res.Message, "layout %s hole %d", layout, hole)
			assert.True(t, res.Mismatch)
			assert.Equal(t, []int{hole}, res.Recovered)
			assert.Equal(t, []int{hole}, res.Holes)
			assert.True(t, hasWarning(logs))
		}
	}
}

func TestStore_MissingParityBlock(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	require.NoError(t, s.Write(hello, 5))
	s.Disks()[7].EraseBlock(5*8 + 7)

	res, err := s.ReadStripe(5)
	require.NoError(t, err)
	assert.Equal(t, hello, res.Message)
	assert.True(t, res.Mismatch)
	assert.Empty(t, res.Recovered)
}

func TestStore_TwoHolesInsufficient(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	require.NoError(t, s.Write(hello, 5))
	s.Disks()[1].EraseBlock(5*8 + 1)
	s.Disks()[4].EraseBlock(5*8 + 4)

	res, err := s.ReadStripe(5)
	assert.ErrorIs(t, err, ErrInsufficientRedundancy)
	assert.Equal(t, []int{1, 4}, res.Holes)
}

func TestStore_CorruptionIsFlagged(t *testing.T) {
	s, logs := newTestStore(t, Config{})
	require.NoError(t, s.Write(hello, 5))
	s.Disks()[2].WriteBlock(model.Block("XX"), 5*8+2)

	res, err := s.ReadStripe(5)
	require.NoError(t, err)
	assert.True(t, res.Mismatch)
	assert.Empty(t, res.Recovered)
	assert.Equal(t, "HELLXXORLD1234", res.Message)
	assert.True(t, hasWarning(logs))
}

func TestStore_StripeLayoutPlacesOneBlockPerDisk(t *testing.T) {
	s, _ := newTestStore(t, Config{Layout: LayoutStripe})
	require.NoError(t, s.Write(hello, 0))

	for i, d := range s.Disks() {
		st := d.Stats()
		assert.Equal(t, uint64(1), st.Writes, "disk %d", i)
		assert.Equal(t, i+1, st.Length)
		assert.False(t, d.ReadBlock(i).IsHole())
	}
}

func TestStore_InvalidInput(t *testing.T) {
	s, _ := newTestStore(t, Config{})

	assert.ErrorIs(t, s.Write(hello, -1), ErrInvalidInput)
	assert.ErrorIs(t, s.Write(hello, 64), ErrInvalidInput)
	assert.ErrorIs(t, s.Write("short", 1), ErrInvalidInput)
	assert.ErrorIs(t, s.Write(hello+"!", 1), ErrInvalidInput)
	assert.ErrorIs(t, s.Erase(64), ErrInvalidInput)
	_, err := s.Read(-1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, s.Write(hello, 63))
}

func TestStore_OddMessageSize(t *testing.T) {
	s, _ := newTestStore(t, Config{MessageSize: 13})
	require.Equal(t, 8, s.StripeWidth())
	require.NoError(t, s.Write("HELLOWORLD123", 2))

	got, err := s.Read(2)
	require.NoError(t, err)
	assert.Equal(t, "HELLOWORLD123", got)
}

func TestNew_ConfigValidation(t *testing.T) {
	log, _ := testutil.NewLogger()

	_, err := New(Config{Disks: 5, Logger: log})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New(Config{Layout: "raid5", Logger: log})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// 16 byte messages in 4 byte blocks need 5 disks
	s, err := New(Config{Disks: 5, MessageSize: 16, BlockWidth: 4, Logger: log})
	require.NoError(t, err)
	require.NoError(t, s.Write("0123456789abcdef", 1))
	got, err := s.Read(1)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", got)
	require.NoError(t, s.Close())
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutMirror, l)

	l, err = ParseLayout(" Stripe ")
	require.NoError(t, err)
	assert.Equal(t, LayoutStripe, l)

	_, err = ParseLayout("raid0")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_TextJournal(t *testing.T) {
	for _, layout := range layouts {
		t.Run(string(layout), func(t *testing.T) {
			dir := t.TempDir()
			s, _ := newTestStore(t, Config{Layout: layout, TextJournalDir: dir})
			require.NoError(t, s.Write(hello, 5))
			require.NoError(t, s.Erase(5))
			require.NoError(t, s.Close())

			want := 8
			if layout == LayoutStripe {
				want = 1
			}
			for i := 0; i < 8; i++ {
				raw, err := os.ReadFile(filepath.Join(dir, "disk"+string(rune('0'+i))+".txt"))
				require.NoError(t, err)
				lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
				assert.Len(t, lines, want, "disk%d", i)
			}

			blocks, err := journals.ReadTextJournal(journals.TextJournalPath(dir, "disk0"))
			require.NoError(t, err)
			assert.Equal(t, model.Block("HE"), blocks[0])
		})
	}
}

func TestStore_ReplayFromBadger(t *testing.T) {
	dir := t.TempDir()
	log, _ := testutil.NewLogger()

	s, err := New(Config{BadgerDir: dir, Logger: log})
	require.NoError(t, err)
	require.NoError(t, s.Write(hello, 5))
	require.NoError(t, s.Write("ABCDEFGHIJKLMN", 6))
	require.NoError(t, s.Erase(6))
	require.NoError(t, s.Close())

	// without replay the journal is only a mirror
	cold, err := New(Config{BadgerDir: dir, Logger: log})
	require.NoError(t, err)
	_, err = cold.Read(5)
	assert.ErrorIs(t, err, ErrInsufficientRedundancy)
	require.NoError(t, cold.Close())

	warm, err := New(Config{BadgerDir: dir, Replay: true, Logger: log})
	require.NoError(t, err)
	defer warm.Close()

	got, err := warm.Read(5)
	require.NoError(t, err)
	assert.Equal(t, hello, got)

	_, err = warm.Read(6)
	assert.ErrorIs(t, err, ErrInsufficientRedundancy)
	for _, d := range warm.Disks() {
		assert.Equal(t, 56, d.Len())
	}
}

func TestStore_ReplayThroughTextAndBadgerJournals(t *testing.T) {
	textDir := t.TempDir()
	badgerDir := t.TempDir()
	log, logs := testutil.NewLogger()

	s, err := New(Config{TextJournalDir: textDir, BadgerDir: badgerDir, Logger: log})
	require.NoError(t, err)
	require.NoError(t, s.Write(hello, 2))
	require.NoError(t, s.Close())

	logs.Reset()
	warm, err := New(Config{TextJournalDir: textDir, BadgerDir: badgerDir, Replay: true, Logger: log})
	require.NoError(t, err)
	defer warm.Close()

	got, err := warm.Read(2)
	require.NoError(t, err)
	assert.Equal(t, hello, got)

	opened := logs.Find("disk opened")
	require.Len(t, opened, 8)
	for _, e := range opened {
		assert.Equal(t, float64(8), e["replayed"])
		assert.Contains(t, e["text_journal"], textDir)
	}
}

func TestStore_Closed(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Write(hello, 0), ErrClosed)
	assert.ErrorIs(t, s.Erase(0), ErrClosed)
	_, err := s.Read(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_RandomizedLong(t *testing.T) {
	testutil.RequireLong(t)

	for _, layout := range layouts {
		s, _ := newTestStore(t, Config{Layout: layout})
		want := make(map[int]string)

		for round := int64(0); round < 2000; round++ {
			address := int(round*7919) % 64
			switch round % 5 {
			case 0, 1, 2:
				msg := testutil.Message(round, 14)
				require.NoError(t, s.Write(msg, address))
				want[address] = msg
			case 3:
				require.NoError(t, s.Erase(address))
				delete(want, address)
			case 4:
				if msg, ok := want[address]; ok {
					hole := int(round) % 8
					s.Disks()[hole].EraseBlock(address*8 + hole)
					got, err := s.Read(address)
					require.NoError(t, err)
					require.Equal(t, msg, got)
					require.NoError(t, s.Write(msg, address))
				}
			}
		}

		for address, msg := range want {
			got, err := s.Read(address)
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		}
	}
}
