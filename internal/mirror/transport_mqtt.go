package mirror

import (
	"fmt"
	"time"

	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/log2"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

type transportMqtt struct {
	log     *log2.Log
	m       mqtt.Client
	topic   string
	timeout time.Duration
}

// NewMqtt builds paho publisher. Connection is retried in background by paho.
func NewMqtt(c *Config, deviceID uint8, log *log2.Log) Publisher {
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log

	clientID := c.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("telenode%d", deviceID)
	}
	topic := c.Topic
	if topic == "" {
		topic = fmt.Sprintf(DefaultTopic, deviceID)
	}
	self := &transportMqtt{
		log:     log,
		topic:   topic,
		timeout: helpers.IntSecondDefault(c.TimeoutSec, 10*time.Second),
	}
	keepAlive := helpers.IntSecondDefault(c.KeepaliveSec, 60*time.Second)
	mopt := mqtt.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(clientID).
		SetUsername(c.Username).
		SetPassword(c.Password).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetPingTimeout(keepAlive / 2).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(helpers.IntSecondDefault(c.RetrySec, DefaultRetryDelay)).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	self.m = mqtt.NewClient(mopt)
	return self
}

func (self *transportMqtt) Connect() error {
	token := self.m.Connect()
	if token.WaitTimeout(self.timeout) && token.Error() != nil {
		return errors.Annotatef(token.Error(), "mqtt connect")
	}
	return nil
}

func (self *transportMqtt) Publish(payload []byte) error {
	if !self.m.IsConnectionOpen() {
		return errors.New("mqtt not connected")
	}
	token := self.m.Publish(self.topic, 1, false, payload)
	if !token.WaitTimeout(self.timeout) {
		return errors.Timeoutf("mqtt publish topic=%s", self.topic)
	}
	return errors.Annotatef(token.Error(), "mqtt publish topic=%s", self.topic)
}

func (self *transportMqtt) Close() {
	self.m.Disconnect(250)
	self.log.Infof("mqtt disconnect")
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("mqtt connection lost err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("mqtt connect topic=%s", self.topic)
}
