package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"fmgo/ds"
	"fmgo/wire"
	"fmgo/wire/dapi"
)

// Grammars a transport can be asked to speak.
const (
	GrammarFMResultSet  = "fmresultset"
	GrammarFMPXMLLayout = "FMPXMLLAYOUT"
	GrammarDataAPI      = "dataapi"
)

type (
	// Transport executes one built parameter map against the server
	// and returns the raw response bytes. It performs no retries.
	Transport interface {
		Execute(params *wire.Params, grammar string) ([]byte, error)
	}

	httpTransport struct {
		config Config
		client *http.Client

		// Data API session token, lazily obtained
		mu    sync.Mutex
		token string
	}
)

func newHTTPTransport(config Config) *httpTransport {
	return &httpTransport{
		config: config,
		client: &http.Client{Timeout: config.timeout()},
	}
}

func (t *httpTransport) Execute(params *wire.Params, grammar string) ([]byte, error) {
	switch grammar {
	case GrammarFMResultSet, GrammarFMPXMLLayout:
		return t.executeXML(params, grammar)
	case GrammarDataAPI:
		return t.executeDataAPI(params)
	default:
		return nil, ds.ErrUnreachableCode{Caller: "httpTransport.Execute"}
	}
}

// executeXML posts the parameter map as an urlencoded form to the
// legacy grammar's endpoint.
func (t *httpTransport) executeXML(params *wire.Params, grammar string) ([]byte, error) {
	endpoint := t.config.Host + "/fmi/xml/" + grammar + ".xml"
	request, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(params.EncodeForm()))
	if err != nil {
		return nil, wire.TransportError{Err: err}
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.SetBasicAuth(t.config.Username, t.config.Password)
	return t.do(request)
}

func (t *httpTransport) executeDataAPI(params *wire.Params) ([]byte, error) {
	translation, err := dapi.Translate(params)
	if err != nil {
		return nil, err
	}
	token, err := t.session()
	if err != nil {
		return nil, err
	}

	endpoint := t.config.Host + translation.Path
	if len(translation.Query) > 0 {
		endpoint += "?" + translation.Query.Encode()
	}
	var body io.Reader
	if translation.Body != nil {
		body = bytes.NewReader(translation.Body)
	}
	request, err := http.NewRequest(translation.Method, endpoint, body)
	if err != nil {
		return nil, wire.TransportError{Err: err}
	}
	request.Header.Set("Authorization", "Bearer "+token)
	if translation.Body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return t.do(request)
}

// session logs in once and reuses the token; the Data API keeps its
// own idle expiry, a stale token surfaces as a server error code.
func (t *httpTransport) session() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" {
		return t.token, nil
	}

	endpoint := t.config.Host + "/fmi/data/v1/databases/" + t.config.Database + "/sessions"
	request, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader("{}"))
	if err != nil {
		return "", wire.TransportError{Err: err}
	}
	request.Header.Set("Content-Type", "application/json")
	request.SetBasicAuth(t.config.Username, t.config.Password)

	bs, err := t.do(request)
	if err != nil {
		return "", err
	}
	envelope := struct {
		Response struct {
			Token string `json:"token"`
		} `json:"response"`
	}{}
	if err := json.Unmarshal(bs, &envelope); err != nil {
		return "", wire.ParseError{Message: "session response: " + err.Error()}
	}
	if envelope.Response.Token == "" {
		return "", errors.New("session error: server returned no token")
	}
	t.token = envelope.Response.Token
	return t.token, nil
}

// Close ends the Data API session, if one was opened.
func (t *httpTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == "" {
		return nil
	}
	endpoint := t.config.Host + "/fmi/data/v1/databases/" + t.config.Database + "/sessions/" + t.token
	request, err := http.NewRequest(http.MethodDelete, endpoint, nil)
	if err != nil {
		return wire.TransportError{Err: err}
	}
	_, err = t.do(request)
	t.token = ""
	return err
}

// do runs the request and hands the body back for envelope-level
// error interpretation; only transport-level failures error here.
func (t *httpTransport) do(request *http.Request) ([]byte, error) {
	response, err := t.client.Do(request)
	if err != nil {
		return nil, wire.TransportError{Err: err}
	}
	defer response.Body.Close()

	bs, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, wire.TransportError{StatusCode: response.StatusCode, Err: err}
	}
	if response.StatusCode >= http.StatusInternalServerError {
		return nil, wire.TransportError{
			StatusCode: response.StatusCode,
			Err:        errors.Errorf("server failure: %s", response.Status),
		}
	}
	return bs, nil
}
