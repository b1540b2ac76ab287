package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleCommands(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
		cmd    byte
	}{
		{"query", BuildQueryCmd(), CmdQueryDevice},
		{"erase", BuildEraseCmd(), CmdEraseDevice},
		{"reset", BuildResetCmd(), CmdResetDevice},
		{"program complete", BuildProgramCompleteCmd(), CmdProgramComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Len(t, tt.packet, PacketSize)
			assert.Equal(t, byte(ReportID), tt.packet[0], "reserved byte")
			assert.Equal(t, tt.cmd, tt.packet[1], "command")
			assert.Equal(t, make([]byte, PacketSize-2), tt.packet[2:], "payload not zero")
		})
	}
}

func TestBuildUnlockConfigCmd(t *testing.T) {
	unlock := BuildUnlockConfigCmd(true)
	assert.Equal(t, []byte{ReportID, CmdUnlockConfig, ConfigUnlock}, unlock[:3])

	lock := BuildUnlockConfigCmd(false)
	assert.Equal(t, []byte{ReportID, CmdUnlockConfig, ConfigLock}, lock[:3])

	got, err := DecodeUnlockConfigCmd(unlock)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = DecodeUnlockConfigCmd(lock)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestBuildProgramCmd(t *testing.T) {
	tests := []struct {
		name    string
		address uint32
		data    []byte
		wantErr bool
		errMsg  string
	}{
		{
			name:    "full packet",
			address: 0x1000,
			data:    bytes.Repeat([]byte{0xA5}, MaxDataSize),
		},
		{
			name:    "short packet is right-aligned",
			address: 0x9D000000,
			data:    []byte{0x01, 0x02, 0x03},
		},
		{
			name:    "empty data",
			address: 0,
			data:    nil,
		},
		{
			name:    "too long",
			address: 0,
			data:    make([]byte, MaxDataSize+1),
			wantErr: true,
			errMsg:  "exceeds maximum 58 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := BuildProgramCmd(tt.address, tt.data)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)

			require.Len(t, packet, PacketSize)
			assert.Equal(t, byte(CmdProgramDevice), packet[1])
			assert.Equal(t, len(tt.data), int(packet[6]), "length")

			front := packet[7 : PacketSize-len(tt.data)]
			assert.Equal(t, make([]byte, len(front)), front, "front of data field not zero")
			assert.True(t, bytes.Equal(tt.data, packet[PacketSize-len(tt.data):]), "data not right-aligned: % X", packet[7:])

			addr, data, err := DecodeProgramCmd(packet)
			require.NoError(t, err)
			assert.Equal(t, tt.address, addr)
			if len(tt.data) != 0 {
				assert.Equal(t, tt.data, data)
			}
		})
	}
}

func TestBuildProgramCmdAddressLittleEndian(t *testing.T) {
	packet, err := BuildProgramCmd(0x12345678, []byte{0xFF})
	require.NoError(t, err)

	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, packet[2:6])
}

func TestBuildGetDataCmd(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{"one byte", 1, false},
		{"max", MaxDataSize, false},
		{"zero", 0, true},
		{"negative", -1, true},
		{"too long", MaxDataSize + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := BuildGetDataCmd(0x200, tt.length)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			addr, n, err := DecodeGetDataCmd(packet)
			require.NoError(t, err)
			assert.Equal(t, uint32(0x200), addr)
			assert.Equal(t, tt.length, n)
		})
	}
}

func TestDecodeRejectsWrongCommand(t *testing.T) {
	_, _, err := DecodeProgramCmd(BuildQueryCmd())
	assert.Error(t, err, "DecodeProgramCmd accepted a query packet")

	_, _, err = DecodeGetDataCmd(BuildEraseCmd())
	assert.Error(t, err, "DecodeGetDataCmd accepted an erase packet")

	_, err = DecodeUnlockConfigCmd(make([]byte, 10))
	assert.Error(t, err, "DecodeUnlockConfigCmd accepted a short packet")
}
