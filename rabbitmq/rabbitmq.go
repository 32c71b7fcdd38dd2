package rabbitmq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/craftlane/deliveryhub/db/models"
	"github.com/getsentry/sentry-go"
	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ziflex/lecho/v3"
)

// bufPool is a classic buffer pool pattern that allows more clever reuse of
// heap memory. Instead of allocating new memory every time we encode an
// invoice we reuse buffers from this pool.
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

const (
	contentTypeJSON = "application/json"

	defaultHeartbeat = 10 * time.Second
	defaultLocale    = "en_US"

	msgReconnect = "RECONNECT_DONE"
	msgClose     = "CLOSE"
)

type listenerMsg = string

type (
	// PaymentMessageHandler receives the raw body of one payment
	// confirmation message.
	PaymentMessageHandler = func(ctx context.Context, body []byte) error
	// SubscribeToInvoicesFunc yields the channels carrying delivered and
	// failed invoices to be published.
	SubscribeToInvoicesFunc = func() (delivered chan models.Invoice, failed chan models.Invoice, err error)
	EncodeInvoiceFunc       = func(ctx context.Context, w io.Writer, invoice models.Invoice) error
)

type Client interface {
	SubscribeToPayments(context.Context, PaymentMessageHandler) error
	StartPublishInvoices(context.Context, SubscribeToInvoicesFunc, EncodeInvoiceFunc) error
	// Close will close all connections to rabbitmq
	Close() error
}

type DefaultClient struct {
	conn *amqp.Connection
	uri  string

	// It is recommended that, when possible, publishers and consumers
	// use separate connections so that consumers are isolated from potential
	// flow control measures that may be applied to publishing connections.
	consumeChannel *amqp.Channel
	publishChannel *amqp.Channel

	notifyCloseChan chan *amqp.Error

	listenersMu sync.Mutex
	listeners   []chan listenerMsg
	reconFlag   atomic.Bool

	logger *lecho.Logger

	paymentConsumerQueueName string
	paymentExchange          string
	invoiceExchange          string
}

type ClientOption = func(client *DefaultClient)

func WithPaymentExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.paymentExchange = exchange
	}
}

func WithInvoiceExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.invoiceExchange = exchange
	}
}

func WithPaymentConsumerQueueName(name string) ClientOption {
	return func(client *DefaultClient) {
		client.paymentConsumerQueueName = name
	}
}

func WithLogger(logger *lecho.Logger) ClientOption {
	return func(client *DefaultClient) {
		client.logger = logger
	}
}

// Dial sets up a connection to rabbitmq with two channels that are ready to
// produce and consume, and starts the reconnection loop that re-dials with
// exponential backoff whenever the broker closes the connection.
func Dial(uri string, options ...ClientOption) (Client, error) {
	client := &DefaultClient{
		uri: uri,

		logger: lecho.New(
			os.Stdout,
			lecho.WithLevel(log.DEBUG),
			lecho.WithTimestamp(),
		),

		paymentConsumerQueueName: "chain_payment_consumer",
		paymentExchange:          "chain_payment",
		invoiceExchange:          "deliveryhub_invoice",
	}

	for _, opt := range options {
		opt(client)
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	go client.reconnectionLoop()

	return client, nil
}

func (client *DefaultClient) connect() error {
	conn, err := amqp.DialConfig(client.uri, amqp.Config{
		Heartbeat: defaultHeartbeat,
		Locale:    defaultLocale,
		Dial:      amqp.DefaultDial(time.Second * 3),
	})
	if err != nil {
		return err
	}

	consumeChannel, err := conn.Channel()
	if err != nil {
		return err
	}

	publishChannel, err := conn.Channel()
	if err != nil {
		return err
	}

	notifyCloseChan := make(chan *amqp.Error)
	conn.NotifyClose(notifyCloseChan)

	client.conn = conn
	client.consumeChannel = consumeChannel
	client.publishChannel = publishChannel
	client.notifyCloseChan = notifyCloseChan

	return nil
}

// reconnectionLoop re-dials after a broker-side close. While it runs,
// publishing is held back via reconFlag; consumers get told to pull a fresh
// deliveries channel once the new connection is up.
func (client *DefaultClient) reconnectionLoop() {
	for {
		amqpError, ok := <-client.notifyCloseChan
		if !ok {
			// clean shutdown through Close
			return
		}
		captureErr(client.logger, amqpError)

		expontentialBackoff := backoff.NewExponentialBackOff()
		expontentialBackoff.MaxInterval = time.Second * 10
		expontentialBackoff.MaxElapsedTime = time.Minute

		client.reconFlag.Store(true)

		client.logger.Info("Trying to reconnect to rabbitmq...")
		err := backoff.Retry(client.connect, expontentialBackoff)
		if err != nil {
			captureErr(client.logger, err)
			client.notifyListeners(msgClose)
			return
		}

		client.reconFlag.Store(false)
		client.logger.Info("Successfully reconnected to rabbitmq")

		client.notifyListeners(msgReconnect)
	}
}

func (client *DefaultClient) notifyListeners(msg listenerMsg) {
	client.listenersMu.Lock()
	defer client.listenersMu.Unlock()
	for _, listener := range client.listeners {
		listener <- msg
	}
}

func (client *DefaultClient) addListener() chan listenerMsg {
	client.listenersMu.Lock()
	defer client.listenersMu.Unlock()
	listener := make(chan listenerMsg, 2)
	client.listeners = append(client.listeners, listener)
	return listener
}

func (client *DefaultClient) Close() error { return client.conn.Close() }

// consumePayments declares the payment exchange, queue and binding, and
// starts consuming. Called again after every reconnect because the old
// channels die with the old connection.
func (client *DefaultClient) consumePayments() (<-chan amqp.Delivery, error) {
	err := client.consumeChannel.ExchangeDeclare(
		client.paymentExchange,
		// topic exchanges route messages to queues based on a routing key
		"topic",
		// Durable and Non-Auto-Deleted exchanges will survive server restarts
		// and remain declared when there are no remaining bindings.
		true,
		false,
		// Non-Internal exchanges accept direct publishing
		false,
		// Nowait: false because we want a server response confirming the
		// exchange was created successfully
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	queue, err := client.consumeChannel.QueueDeclare(
		client.paymentConsumerQueueName,
		true,
		false,
		// Non-Exclusive means other consumers can consume from this queue.
		// Messages are load balanced between consumers, so multiple engine
		// instances spread the confirmations between them.
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	err = client.consumeChannel.QueueBind(
		queue.Name,
		"payment.confirmed.#",
		client.paymentExchange,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return client.consumeChannel.Consume(
		queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
}

// SubscribeToPayments consumes payment confirmation messages and feeds each
// body to the handler. Messages that cannot be decoded or handled are
// Nack'ed without requeue: requeueing them would loop forever and put
// pressure on the database and logs. A broker disconnect is ridden out by
// the reconnection loop; the subscription only ends when reconnecting gave
// up or ctx is cancelled.
func (client *DefaultClient) SubscribeToPayments(ctx context.Context, handler PaymentMessageHandler) error {
	deliveryChan, err := client.consumePayments()
	if err != nil {
		return err
	}

	notifyReconnectChan := client.addListener()

	client.logger.Info("Starting RabbitMQ payment consumer loop")
	for {
		select {
		case <-ctx.Done():
			return context.Canceled

		case msg := <-notifyReconnectChan:
			switch msg {
			case msgReconnect:
				deliveryChan, err = client.consumePayments()
				if err != nil {
					return err
				}
				client.logger.Info("Resumed payment consumption after reconnect")
			case msgClose:
				return errors.New("lost connection to rabbitmq and could not reconnect")
			}

		case delivery, ok := <-deliveryChan:
			if !ok {
				// the reconnection loop will hand us a fresh channel or
				// tell us to give up
				continue
			}

			err = handler(ctx, delivery.Body)
			if err != nil {
				captureErr(client.logger, err)

				err := delivery.Nack(false, false)
				if err != nil {
					captureErr(client.logger, err)
				}

				continue
			}

			err = delivery.Ack(false)
			if err != nil {
				captureErr(client.logger, err)
			}
		}
	}
}

// StartPublishInvoices publishes every terminal invoice outcome to the
// invoice exchange, keyed by invoice.<service_type>.<status>.
func (client *DefaultClient) StartPublishInvoices(ctx context.Context, invoicesSubscribeFunc SubscribeToInvoicesFunc, payloadFunc EncodeInvoiceFunc) error {
	err := client.publishChannel.ExchangeDeclare(
		client.invoiceExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	client.logger.Info("Starting rabbitmq publisher")

	delivered, failed, err := invoicesSubscribeFunc()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case invoice := <-delivered:
			err = client.publishToInvoiceExchange(ctx, invoice, payloadFunc)
			if err != nil {
				captureErr(client.logger, err)
			}
		case invoice := <-failed:
			err = client.publishToInvoiceExchange(ctx, invoice, payloadFunc)
			if err != nil {
				captureErr(client.logger, err)
			}
		}
	}
}

func (client *DefaultClient) publishToInvoiceExchange(ctx context.Context, invoice models.Invoice, payloadFunc EncodeInvoiceFunc) error {
	payload := bufPool.Get().(*bytes.Buffer)
	payload.Reset()
	defer bufPool.Put(payload)

	err := payloadFunc(ctx, payload, invoice)
	if err != nil {
		return err
	}

	// hold publishing back until the reconnection loop is done, the old
	// channel is unusable while it runs
	if client.reconFlag.Load() {
		expontentialBackoff := backoff.NewExponentialBackOff()
		expontentialBackoff.MaxInterval = time.Second * 10
		expontentialBackoff.MaxElapsedTime = time.Minute

		err := backoff.Retry(func() error {
			if client.reconFlag.Load() {
				return errors.New("trying to publish during reconnect")
			}
			return nil
		}, expontentialBackoff)
		if err != nil {
			return err
		}
	}

	key := fmt.Sprintf("invoice.%s.%s", invoice.ServiceType, invoice.Status)

	err = client.publishChannel.PublishWithContext(ctx,
		client.invoiceExchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType: contentTypeJSON,
			Body:        payload.Bytes(),
		},
	)
	if err != nil {
		captureErr(client.logger, err)
		return err
	}

	client.logger.Debugf("Successfully published invoice to rabbitmq external_id:%s", invoice.ExternalID)

	return nil
}

func captureErr(logger *lecho.Logger, err error) {
	logger.Error(err)
	sentry.CaptureException(err)
}
