package model

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Largest body ReadJobRequest and ReadJobResponse accept.
const MaxContentLength = 1 << 20

var (
	errNotKeyValue  = errors.New("not a key value pair")
	errBodyTooLarge = errors.New("content length too large")
)

type JobRequest struct {
	ID   uuid.UUID
	Name string
	// [milliseconds] How long the server should spend on the job.
	Work    int
	Payload []byte
}

type JobResponse struct {
	ID     uuid.UUID
	Status Status
	// Queue length seen when the job was admitted, including itself.
	Position int
	// [milliseconds] Time between admission and start.
	Waited  int
	Payload []byte
}

// Write a JobRequest.
func (r *JobRequest) Write(writer io.Writer) (err error) {
	// Format mimics HTTP:
	// Headers - "Key: Value" separated by \n
	// Followed by empty line
	// Followed by optional data
	_, err = fmt.Fprintf(writer,
		"Id: %s\nName: %s\nWork: %d\nContent-Length: %d\n\n",
		r.ID, r.Name, r.Work, len(r.Payload))
	if err != nil {
		return
	}

	_, err = writer.Write(r.Payload)
	return
}

// Read a JobRequest.
func ReadJobRequest(reader *bufio.Reader) (req *JobRequest, err error) {
	request := &JobRequest{}

	contentLength := 0
	err = readHeaders(reader, func(key, value string) (err error) {
		switch key {
		case "Id":
			request.ID, err = uuid.Parse(value)
		case "Name":
			request.Name = value
		case "Work":
			if request.Work, err = strconv.Atoi(value); err == nil && request.Work < 0 {
				err = errors.Errorf("negative work %d", request.Work)
			}
		case "Content-Length":
			contentLength, err = strconv.Atoi(value)
		}
		return
	})
	if err != nil {
		return
	}

	if request.Payload, err = readBody(reader, contentLength); err != nil {
		return
	}
	req = request
	return
}

// Write a JobResponse.
func (r *JobResponse) Write(writer io.Writer) (err error) {
	_, err = fmt.Fprintf(writer,
		"Id: %s\nStatus: %d\nPosition: %d\nWaited: %d\n"+
			"Content-Length: %d\n\n",
		r.ID, r.Status, r.Position, r.Waited, len(r.Payload))
	if err != nil {
		return
	}

	_, err = writer.Write(r.Payload)
	return
}

// Read a JobResponse.
func ReadJobResponse(reader *bufio.Reader) (res *JobResponse, err error) {
	response := &JobResponse{}

	contentLength := 0
	err = readHeaders(reader, func(key, value string) (err error) {
		var intValue int
		switch key {
		case "Id":
			response.ID, err = uuid.Parse(value)
		case "Status":
			if intValue, err = strconv.Atoi(value); err == nil {
				response.Status = Status(intValue)
			}
		case "Position":
			response.Position, err = strconv.Atoi(value)
		case "Waited":
			response.Waited, err = strconv.Atoi(value)
		case "Content-Length":
			contentLength, err = strconv.Atoi(value)
		}
		return
	})
	if err != nil {
		return
	}

	if response.Payload, err = readBody(reader, contentLength); err != nil {
		return
	}
	res = response
	return
}

// Reads "Key: Value" lines up to and including the empty line.
func readHeaders(reader *bufio.Reader, header func(key, value string) error) error {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}

		line = line[:len(line)-1] // Removes the \n
		if len(line) == 0 {
			return nil
		}

		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			return errors.Wrapf(errNotKeyValue, "%q", line)
		}

		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		if err := header(key, value); err != nil {
			return errors.Wrapf(err, "header %s", key)
		}
	}
}

func readBody(reader *bufio.Reader, contentLength int) ([]byte, error) {
	if contentLength < 0 {
		return nil, errors.Errorf("negative content length %d", contentLength)
	}
	if contentLength > MaxContentLength {
		return nil, errors.Wrapf(errBodyTooLarge, "%d > %d", contentLength, MaxContentLength)
	}

	// Grows with the bytes that arrive, not with the announced length.
	data, err := io.ReadAll(io.LimitReader(reader, int64(contentLength)))
	if err != nil {
		return nil, err
	}
	if len(data) < contentLength {
		return nil, io.ErrUnexpectedEOF
	}
	return data, nil
}
