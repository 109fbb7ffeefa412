package gateway

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"localpub/internal/constants"
	"localpub/internal/utils"
)

func isWebSocketUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// websocketProxy dials the target first so the subprotocol it picks can be
// offered back to the visitor, then bridges the two connections.
func (g *Gateway) websocketProxy(w http.ResponseWriter, r *http.Request) {
	g.log.Debugf("🔌 Creating WS bridge: path=%s", r.URL.RequestURI())

	dialer := &websocket.Dialer{
		Subprotocols:     websocket.Subprotocols(r),
		HandshakeTimeout: constants.DialTimeout,
		ReadBufferSize:   constants.WSBufferSize,
		WriteBufferSize:  constants.WSBufferSize,
	}

	reqHeader := utils.CloneHeaderWithout(r.Header, utils.HopByHopHeaders, utils.WebSocketHandshakeHeaders)
	stripSessionCookie(reqHeader)
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		reqHeader.Set("X-Forwarded-For", host)
	}
	reqHeader.Set("X-Forwarded-Proto", utils.GetScheme(r))

	target := url.URL{
		Scheme:   "ws",
		Host:     g.target.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}

	targetConn, resp, err := dialer.DialContext(r.Context(), target.String(), reqHeader)
	if err != nil {
		g.log.WithError(err).Warnf("Could not dial target websocket: path=%s", r.URL.RequestURI())
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			// The target answered but refused the upgrade; pass its status on.
			resp.Body.Close()
			w.WriteHeader(resp.StatusCode)
			return
		}
		g.renderUnavailable(w)
		return
	}
	defer resp.Body.Close()

	var respHeader http.Header
	if proto := targetConn.Subprotocol(); proto != "" {
		respHeader = http.Header{"Sec-Websocket-Protocol": {proto}}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  constants.WSBufferSize,
		WriteBufferSize: constants.WSBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	visitorConn, err := upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		g.log.WithError(err).Debugf("Could not upgrade visitor connection: path=%s", r.URL.RequestURI())
		targetConn.Close()
		return
	}

	g.bridges.Add(visitorConn)
	g.bridges.Add(targetConn)
	defer func() {
		g.bridges.Remove(visitorConn)
		g.bridges.Remove(targetConn)
	}()

	if err := bridgeConn(targetConn, visitorConn); err != nil {
		g.log.WithError(err).Debug("WS bridge closed with error")
	}
}

func bridgeConn(conn1 *websocket.Conn, conn2 *websocket.Conn) error {
	conn1.SetPingHandler(forwardControl(websocket.PingMessage, conn2))
	conn2.SetPingHandler(forwardControl(websocket.PingMessage, conn1))

	conn1.SetPongHandler(forwardControl(websocket.PongMessage, conn2))
	conn2.SetPongHandler(forwardControl(websocket.PongMessage, conn1))

	// Close frames are relayed by copyWsData instead of being answered here.
	conn1.SetCloseHandler(func(code int, text string) error {
		return nil
	})
	conn2.SetCloseHandler(func(code int, text string) error {
		return nil
	})

	defer func() {
		_ = conn1.Close()
		_ = conn2.Close()
	}()

	kill := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(kill) }) }
	var eSrc, eDest atomic.Value

	go func() {
		defer stop()
		if err := copyWsData(conn1, conn2, kill); err != nil {
			eSrc.Store(err)
		}
	}()
	go func() {
		defer stop()
		if err := copyWsData(conn2, conn1, kill); err != nil {
			eDest.Store(err)
		}
	}()

	<-kill
	if err, ok := eSrc.Load().(error); ok && err != nil {
		return err
	}
	if err, ok := eDest.Load().(error); ok && err != nil {
		return err
	}
	return nil
}

func copyWsData(dest *websocket.Conn, src *websocket.Conn, kill <-chan struct{}) error {
	for {
		mtype, reader, err := src.NextReader()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				forwardClose(dest, ce)
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		writer, err := dest.NextWriter(mtype)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				return err
			}
			return nil
		}
		_, err = io.Copy(writer, reader)
		_ = writer.Close()
		if err != nil {
			return err
		}

		select {
		case <-kill:
			return nil
		default:
		}
	}
}

func forwardClose(dest *websocket.Conn, ce *websocket.CloseError) {
	code := ce.Code
	if code == websocket.CloseNoStatusReceived || code == websocket.CloseAbnormalClosure {
		code = websocket.CloseNormalClosure
	}
	msg := websocket.FormatCloseMessage(code, ce.Text)
	_ = dest.WriteControl(websocket.CloseMessage, msg, time.Now().Add(constants.WSControlTimeout))
}

func forwardControl(messageType int, dest *websocket.Conn) func(string) error {
	return func(appData string) error {
		return dest.WriteControl(messageType, []byte(appData), time.Now().Add(constants.WSControlTimeout))
	}
}
