package smstransfer

import (
	"encoding/json"
	"net"
	"strconv"
	"time"

	"github.com/erhanakin/sms-transfer-migration/internal/models"
	"github.com/erhanakin/sms-transfer-migration/internal/smstransfer/constants"
	lserrors "github.com/erhanakin/sms-transfer-migration/internal/smstransfer/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Client issues envelope exchanges against a peer's listener.
type Client struct {
	timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = constants.ProbeTimeout
	}
	return &Client{timeout: timeout}
}

// Probe posts a DISCOVERY envelope to host's discovery endpoint and returns
// the DISCOVERY_RESPONSE envelope.
func (c *Client) Probe(host string, env models.Envelope) (models.Envelope, error) {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	c.prepareURI(req, host, constants.DiscoverPath)
	req.Header.SetMethod(fiber.MethodPost)
	err := agent.Parse()
	if err != nil {
		return models.Envelope{}, err
	}

	status, b, errs := agent.Timeout(c.timeout).JSON(&env).Bytes()
	if len(errs) != 0 {
		return models.Envelope{}, errs[0]
	}
	err = lserrors.ParseError(status)
	if err != nil {
		return models.Envelope{}, err
	}

	var resp models.Envelope
	err = json.Unmarshal(b, &resp)
	if err != nil {
		return models.Envelope{}, err
	}

	return resp, nil
}

// SendEnvelope posts an envelope to host's transfer endpoint and returns
// the acknowledgment. Non-200 statuses map onto protocol errors.
func (c *Client) SendEnvelope(host string, env models.Envelope) (models.Ack, error) {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	c.prepareURI(req, host, constants.TransferPath)
	req.Header.SetMethod(fiber.MethodPost)
	err := agent.Parse()
	if err != nil {
		return models.Ack{}, err
	}

	status, b, errs := agent.Timeout(c.timeout).JSON(&env).Bytes()
	if len(errs) != 0 {
		return models.Ack{}, errs[0]
	}
	err = lserrors.ParseError(status)
	if err != nil {
		return models.Ack{}, err
	}

	var ack models.Ack
	err = json.Unmarshal(b, &ack)
	if err != nil {
		return models.Ack{}, err
	}

	return ack, nil
}

// CheckHealth hits the liveness endpoint of host.
func (c *Client) CheckHealth(host string) error {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	c.prepareURI(req, host, constants.HealthPath)
	req.Header.SetMethod(fiber.MethodGet)
	err := agent.Parse()
	if err != nil {
		return err
	}

	status, _, errs := agent.Timeout(c.timeout).Bytes()
	if len(errs) != 0 {
		return errs[0]
	}

	return lserrors.ParseError(status)
}

// Identify fetches the identity a host announces on GET /discover.
func (c *Client) Identify(host string) (models.DeviceInfo, error) {
	agent := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(agent)

	req := agent.Request()
	c.prepareURI(req, host, constants.DiscoverPath)
	req.Header.SetMethod(fiber.MethodGet)
	err := agent.Parse()
	if err != nil {
		return models.DeviceInfo{}, err
	}

	status, b, errs := agent.Timeout(c.timeout).Bytes()
	if len(errs) != 0 {
		return models.DeviceInfo{}, errs[0]
	}
	err = lserrors.ParseError(status)
	if err != nil {
		return models.DeviceInfo{}, err
	}

	var resp models.Envelope
	err = json.Unmarshal(b, &resp)
	if err != nil {
		return models.DeviceInfo{}, err
	}

	payload, err := resp.DecodePayload()
	if err != nil {
		return models.DeviceInfo{}, err
	}
	dr, ok := payload.(models.DiscoveryResponsePayload)
	if !ok {
		return models.DeviceInfo{}, lserrors.ErrUnknown
	}

	return dr.Device, nil
}

func (c *Client) prepareURI(req *fasthttp.Request, host string, path string) {
	req.Header.SetUserAgent("sms-transfer-cli")
	req.Header.SetContentType(fiber.MIMEApplicationJSON)
	req.URI().SetScheme("http")
	req.URI().SetHost(host)
	req.URI().SetPath(path)
}

// HostAddr joins an IP and port into the host form the client expects.
func HostAddr(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
