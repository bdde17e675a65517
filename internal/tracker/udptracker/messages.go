package udptracker

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cenkalti/drizzle/internal/tracker"
)

const connectionIDMagic = 0x41727101980

type action int32

const (
	actionConnect action = iota
	actionAnnounce
	actionScrape
	actionError
)

type udpRequest interface {
	io.WriterTo
	setConnectionID(int64)
	setTransactionID(int32)
}

type messageHeader struct {
	Action        action
	TransactionID int32
}

type requestHeader struct {
	ConnectionID int64
	messageHeader
}

func (h *requestHeader) setConnectionID(id int64)  { h.ConnectionID = id }
func (h *requestHeader) setTransactionID(id int32) { h.TransactionID = id }

type connectRequest struct {
	requestHeader
}

func newConnectRequest() *connectRequest {
	req := new(connectRequest)
	req.ConnectionID = connectionIDMagic
	req.Action = actionConnect
	return req
}

func (r *connectRequest) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, r); err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}

type connectResponse struct {
	messageHeader
	ConnectionID int64
}

type announceRequest struct {
	requestHeader
	InfoHash   [20]byte
	PeerID     [20]byte
	Downloaded int64
	Left       int64
	Uploaded   int64
	Event      int32
	IP         uint32
	Key        uint32
	NumWant    int32
	Port       uint16
}

// announceMessage is the announce request followed by the URLData option of BEP 41.
type announceMessage struct {
	announceRequest
	urlData string
}

func newAnnounceMessage(req tracker.AnnounceRequest, key uint32, urlData string) *announceMessage {
	m := &announceMessage{
		announceRequest: announceRequest{
			InfoHash:   req.Torrent.InfoHash,
			PeerID:     req.Torrent.PeerID,
			Downloaded: req.Torrent.BytesDownloaded,
			Left:       req.Torrent.BytesLeft,
			Uploaded:   req.Torrent.BytesUploaded,
			Event:      int32(req.Event),
			Key:        key,
			NumWant:    int32(req.NumWant),
			Port:       uint16(req.Torrent.Port),
		},
		urlData: urlData,
	}
	m.Action = actionAnnounce
	return m
}

const optionURLData = 0x2

func (m *announceMessage) WriteTo(w io.Writer) (int64, error) {
	buf := bytes.NewBuffer(make([]byte, 0, binary.Size(m.announceRequest)+len(m.urlData)+2))
	if err := binary.Write(buf, binary.BigEndian, &m.announceRequest); err != nil {
		return 0, err
	}
	for data := m.urlData; len(data) > 0; {
		n := len(data)
		if n > 255 {
			n = 255
		}
		buf.WriteByte(optionURLData)
		buf.WriteByte(byte(n))
		buf.WriteString(data[:n])
		data = data[n:]
	}
	return buf.WriteTo(w)
}

type announceResponse struct {
	messageHeader
	Interval int32
	Leechers int32
	Seeders  int32
}
