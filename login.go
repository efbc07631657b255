package main

import (
	"context"
	"crypto/aes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net"
)

// Phase is one state of the login-phase state machine (§3, §4.6).
// Completed and Failed are terminal. The only move back to an earlier
// phase is a Plugin Response restoring the phase that was active when
// the matching Plugin Request was issued.
type Phase int

const (
	AwaitingHello Phase = iota
	AwaitingEncryptionResponse
	AwaitingPluginResponse
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case AwaitingHello:
		return "AwaitingHello"
	case AwaitingEncryptionResponse:
		return "AwaitingEncryptionResponse"
	case AwaitingPluginResponse:
		return "AwaitingPluginResponse"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ErrorKind discriminates why a login attempt failed (§7). The source
// this handler is grounded on returns a bare bool from every handler;
// carrying the kind alongside lets the listener log and count by kind
// instead of re-deriving it from string matching.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrProtocolVersionMismatch
	ErrMalformedPacket
	ErrCryptoFailure
	ErrVerifyTokenMismatch
	ErrAuthenticationRefused
	ErrAuthenticationUnreachable
	ErrMalformedAuthKind
	ErrInternal
)

// LoginError carries an ErrorKind plus the underlying cause, so
// callers can both log a message and switch on what category of
// failure this was.
type LoginError struct {
	Kind ErrorKind
	Err  error
}

func (e *LoginError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("palisade: login failed (%v)", e.Kind)
	}
	return fmt.Sprintf("palisade: login failed (%v): %v", e.Kind, e.Err)
}

func (e *LoginError) Unwrap() error { return e.Err }

func failWith(kind ErrorKind, err error) *LoginError { return &LoginError{Kind: kind, Err: err} }

// PlayHandoff is the external collaborator invoked at the terminal
// transition into the play phase (§1, out of scope for this module).
type PlayHandoff interface {
	Join(conn *Conn, session *LoginSession)
}

// LoginSession holds the per-connection state described in §3. It is
// owned by exactly one handler goroutine for its whole life; no field
// is ever touched from another goroutine.
type LoginSession struct {
	phase             Phase
	protocolVersion   int32
	claimedUsername   string
	verifyToken       [4]byte
	sharedSecret      *[16]byte
	cipherSet         bool
	uuid              [16]byte
	canonicalUsername string
	textures          Property
	remote            net.Addr
	pluginRequests    map[int32]pluginRequestState
	nextPluginReqID   int32
}

// newLoginSession creates a session for a connection whose Handshake
// packet (out of scope for this module — see spec.md §1) has already
// been parsed by the caller, supplying the protocol version it
// claimed.
func newLoginSession(remote net.Addr, protocolVersion int32) *LoginSession {
	return &LoginSession{
		phase:           AwaitingHello,
		protocolVersion: protocolVersion,
		remote:          remote,
		pluginRequests:  make(map[int32]pluginRequestState),
	}
}

// Phase exposes the session's current state (§6 public getters).
func (s *LoginSession) Phase() Phase { return s.phase }

// ProtocolVersion returns the version claimed in Hello.
func (s *LoginSession) ProtocolVersion() int32 { return s.protocolVersion }

// UUID returns the 16-byte player UUID populated at handoff.
func (s *LoginSession) UUID() [16]byte { return s.uuid }

// CanonicalUsername returns the name to use from here on: the
// session-server's canonical form when online, the claimed name
// otherwise.
func (s *LoginSession) CanonicalUsername() string { return s.canonicalUsername }

// Textures returns the parsed textures property, zero-valued if the
// session is offline-mode or the server never returned one.
func (s *LoginSession) Textures() Property { return s.textures }

// setPhase enforces the monotonic ordering invariant from §3: once
// Completed or Failed, the session never moves again.
func (s *LoginSession) setPhase(p Phase) {
	if s.phase == Completed || s.phase == Failed {
		return
	}
	s.phase = p
	if p == Failed {
		// Free secret material immediately; sharedSecret is the only
		// field cleared, since nothing referencing it survives a Failed
		// session.
		s.sharedSecret = nil
	}
}

// GateConfig is the host-supplied configuration consumed by the state
// machine (§6 Configuration).
type GateConfig struct {
	OnlineMode                   bool
	SupportedProtocolVersion     int32
	ServerMinecraftVersionString string
	NetworkCompressionThreshold  int
	AuthBaseURL                  string
}

// Gate wires C1–C7 together: it is constructed once per server
// process and shared by every connection's handler goroutine. Only
// Keys is read concurrently without synchronization (immutable once the
// Gate is constructed); Auth's own internals handle their own concurrency.
type Gate struct {
	Keys        *RsaKeypair
	Auth        Authenticator
	Translator  Translator
	PlayHandoff PlayHandoff
	Metrics     *Metrics
	Config      GateConfig
}

// HandleConnection drives one connection's login-phase state machine
// to completion or failure, dispatching inbound packets by ID exactly
// as §4.6 describes. It returns nil on a successful handoff and a
// *LoginError otherwise; the caller (the accept loop) is responsible
// for closing the connection either way.
func (g *Gate) HandleConnection(ctx context.Context, rw net.Conn, clientProtocolVersion int32) (*LoginSession, error) {
	conn := newConn(rw)
	session := newLoginSession(rw.RemoteAddr(), clientProtocolVersion)
	g.Metrics.observeOutcome("hello")

	for {
		id, body, err := conn.readLoginPacket(1 << 20)
		if err != nil {
			session.setPhase(Failed)
			g.Metrics.observeOutcome(loginErrOutcome(ErrMalformedPacket))
			return session, failWith(ErrMalformedPacket, err)
		}

		done, loginErr := g.dispatch(ctx, conn, session, id, body)
		if loginErr != nil {
			session.setPhase(Failed)
			g.Metrics.observeOutcome(loginErrOutcome(loginErr.Kind))
			return session, loginErr
		}
		if done {
			return session, nil
		}
	}
}

func loginErrOutcome(kind ErrorKind) string {
	switch kind {
	case ErrProtocolVersionMismatch:
		return "version_mismatch"
	case ErrMalformedPacket:
		return "malformed_packet"
	case ErrCryptoFailure:
		return "crypto_failure"
	case ErrVerifyTokenMismatch:
		return "verify_failed"
	case ErrAuthenticationRefused:
		return "auth_refused"
	case ErrAuthenticationUnreachable:
		return "auth_unreachable"
	case ErrMalformedAuthKind:
		return "malformed_auth"
	default:
		return "internal"
	}
}

// dispatch handles exactly one inbound packet against the session's
// current phase, per the transition table in §4.6. done==true means
// the session reached Completed and the connection has been handed
// off; it's the caller's cue to stop reading.
func (g *Gate) dispatch(ctx context.Context, conn *Conn, session *LoginSession, id int, body []byte) (done bool, err *LoginError) {
	switch session.phase {
	case AwaitingHello:
		if id != PID_SB_LoginStart {
			return false, failWith(ErrMalformedPacket, fmt.Errorf("unexpected packet 0x%02x in AwaitingHello", id))
		}
		return g.handleLoginStart(conn, session, body)

	case AwaitingEncryptionResponse:
		if id != PID_SB_EncryptionResponse {
			return false, failWith(ErrMalformedPacket, fmt.Errorf("unexpected packet 0x%02x in AwaitingEncryptionResponse", id))
		}
		return g.handleEncryptionResponse(ctx, conn, session, body)

	case AwaitingPluginResponse:
		if id != PID_SB_PluginResponse {
			return false, failWith(ErrMalformedPacket, fmt.Errorf("unexpected packet 0x%02x in AwaitingPluginResponse", id))
		}
		return g.handlePluginResponse(session, body)

	default:
		return false, failWith(ErrInternal, fmt.Errorf("packet received in terminal phase %v", session.phase))
	}
}

func (g *Gate) handleLoginStart(conn *Conn, session *LoginSession, body []byte) (bool, *LoginError) {
	pkt, err := readLoginStart(body)
	if err != nil {
		return false, failWith(ErrMalformedPacket, err)
	}
	session.claimedUsername = pkt.Username

	if session.protocolVersion != g.Config.SupportedProtocolVersion {
		return false, g.sendVersionMismatchDisconnect(conn, session, session.protocolVersion)
	}

	if !g.Config.OnlineMode {
		session.canonicalUsername = session.claimedUsername
		if err := g.completeHandoff(conn, session); err != nil {
			return false, err
		}
		g.Metrics.observeOutcome("offline_success")
		return true, nil
	}

	token, err := randomVerifyToken()
	if err != nil {
		return false, failWith(ErrInternal, err)
	}
	session.verifyToken = token

	reqBody := buildEncryptionRequest(g.Keys.ASN1SPKI(), session.verifyToken)
	if err := conn.sendPacketUncompressed(PID_CB_EncryptionRequest, reqBody); err != nil {
		return false, failWith(ErrInternal, err)
	}
	session.setPhase(AwaitingEncryptionResponse)
	g.Metrics.observeOutcome("encryption_requested")
	return false, nil
}

func randomVerifyToken() ([4]byte, error) {
	var token [4]byte
	_, err := rand.Read(token[:])
	return token, err
}

func (g *Gate) handleEncryptionResponse(ctx context.Context, conn *Conn, session *LoginSession, body []byte) (bool, *LoginError) {
	pkt, err := readEncryptionResponse(body)
	if err != nil {
		return false, failWith(ErrMalformedPacket, err)
	}

	secretPlain, err := g.Keys.Decrypt(pkt.EncryptedSharedSecret)
	if err != nil || len(secretPlain) != 16 {
		return false, failWith(ErrCryptoFailure, errors.New("invalid shared secret padding or length"))
	}
	var wireSecret [16]byte
	copy(wireSecret[:], secretPlain)
	canonicalSecret := reverseSecretBytes(wireSecret)
	session.sharedSecret = &canonicalSecret

	block, err := aes.NewCipher(canonicalSecret[:])
	if err != nil {
		return false, failWith(ErrCryptoFailure, err)
	}
	encrypt, decrypt := newCFB8Streams(block, canonicalSecret[:])
	conn.enableCipher(encrypt, decrypt)
	session.cipherSet = true

	tokenPlain, err := g.Keys.Decrypt(pkt.EncryptedVerifyToken)
	if err != nil || len(tokenPlain) != 4 {
		return false, failWith(ErrCryptoFailure, errors.New("invalid verify token padding or length"))
	}
	if binary.BigEndian.Uint32(tokenPlain) != binary.BigEndian.Uint32(session.verifyToken[:]) {
		return false, failWith(ErrVerifyTokenMismatch, nil)
	}

	serverID := serverIDDigest(canonicalSecret[:], g.Keys.ASN1SPKI())

	start := g.Metrics.startAuthTimer()
	identity, authErr := g.Auth.HasJoined(ctx, session.claimedUsername, serverID)
	start.observeDone()
	if authErr != nil {
		switch {
		case errors.Is(authErr, ErrInvalidSession):
			return false, failWith(ErrAuthenticationRefused, authErr)
		case errors.Is(authErr, ErrMalformedAuth):
			return false, failWith(ErrMalformedAuthKind, authErr)
		default:
			return false, failWith(ErrAuthenticationUnreachable, authErr)
		}
	}

	session.uuid = identity.UUID
	session.canonicalUsername = identity.Username
	session.textures = identity.Textures

	if err := g.completeHandoff(conn, session); err != nil {
		return false, err
	}
	g.Metrics.observeOutcome("success")
	return true, nil
}

func (g *Gate) handlePluginResponse(session *LoginSession, body []byte) (bool, *LoginError) {
	pkt, err := readPluginResponse(body)
	if err != nil {
		return false, failWith(ErrMalformedPacket, err)
	}

	outstanding, ok := session.pluginRequests[pkt.MessageID]
	if !ok {
		// Resolves the Open Question in spec.md §9: a Plugin Response
		// is only legal for a message ID the server itself issued via
		// a prior Plugin Request.
		return false, failWith(ErrMalformedPacket, fmt.Errorf("plugin response for unknown message id %d", pkt.MessageID))
	}
	delete(session.pluginRequests, pkt.MessageID)

	// §4.6's state table sends the session back to whatever phase was
	// active when the request was issued, not unconditionally to
	// AwaitingHello — a plugin exchange opened mid-encryption-handshake
	// must resume the encryption handshake, not restart login.
	session.setPhase(outstanding.priorPhase)
	return false, nil
}

// pluginRequestState records what a host's IssuePluginRequest call
// needs remembered until the matching Plugin Response arrives: the
// channel the request was opened on, and the phase to restore so the
// session resumes exactly where it left off.
type pluginRequestState struct {
	channel    string
	priorPhase Phase
}

// IssuePluginRequest sends a 0x04 Plugin Request and records its
// message ID as outstanding, moving the session to AwaitingPluginResponse
// until it's acknowledged. Exposed so a host can ask the client a
// question mid-login (e.g. a custom handshake) without the handler
// losing track of which response is legitimate or which phase to
// resume once it arrives.
func (g *Gate) IssuePluginRequest(conn *Conn, session *LoginSession, channel string, data []byte) error {
	id := session.nextPluginReqID
	session.nextPluginReqID++
	priorPhase := session.phase
	session.pluginRequests[id] = pluginRequestState{channel: channel, priorPhase: priorPhase}

	if err := conn.sendPacket(PID_CB_PluginRequest, buildPluginRequest(id, channel, data)); err != nil {
		return err
	}
	session.setPhase(AwaitingPluginResponse)
	return nil
}

// completeHandoff implements §4.6/§4.7's terminal sequence: send
// SetCompression uncompressed, then LoginSuccess, flip to Completed,
// and invoke the play-phase join hook.
func (g *Gate) completeHandoff(conn *Conn, session *LoginSession) *LoginError {
	threshold := g.Config.NetworkCompressionThreshold
	if err := conn.sendPacketUncompressed(PID_CB_SetCompression, buildSetCompression(threshold)); err != nil {
		return failWith(ErrInternal, err)
	}
	if threshold > 0 {
		conn.enableCompression(threshold)
	}

	if err := conn.sendPacket(PID_CB_LoginSuccess, buildLoginSuccess(session.uuid, session.canonicalUsername)); err != nil {
		return failWith(ErrInternal, err)
	}

	session.setPhase(Completed)
	if g.PlayHandoff != nil {
		g.PlayHandoff.Join(conn, session)
	}
	return nil
}

// sendVersionMismatchDisconnect implements the version-negotiation
// branch of §4.6: send a translated Disconnect and fail the session.
func (g *Gate) sendVersionMismatchDisconnect(conn *Conn, session *LoginSession, clientProtocol int32) *LoginError {
	key := TranslationOutdatedServer
	if clientProtocol < g.Config.SupportedProtocolVersion {
		key = TranslationOutdatedClient
	}
	message := g.Translator.Translate(key, g.Config.ServerMinecraftVersionString)
	if err := conn.sendPacketUncompressed(PID_CB_Disconnect, buildDisconnect(message)); err != nil {
		log.Printf("palisade: failed to send disconnect: %v", err)
	}
	session.setPhase(Failed)
	return failWith(ErrProtocolVersionMismatch, fmt.Errorf("client protocol %d != server protocol %d", clientProtocol, g.Config.SupportedProtocolVersion))
}
