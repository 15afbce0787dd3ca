package protocol

// This package implements the two wire formats samplecast speaks.
//
// == DATA submessages
//
// Samples arrive as RTPS DATA submessages (RTPS v2.5, section 9.4.5.3).
// DecodeData parses one submessage and decides which kind of sample.Sample
// it carries:
//
// - D flag set                      -> Data
// - K flag set                      -> DisposeByKey, kind from PID_STATUS_INFO
// - neither, with PID_KEY_HASH and
//   PID_STATUS_INFO in inline QoS   -> DisposeByKeyHash
//
// Anything else is rejected here so that a sample.Sample is only ever built
// from a well formed message. EncodeData does the reverse.
//
// == Client protocol
//
// Publishers and subscribers talk to samplecast over TCP with a line protocol
// in the spirit of the Redis protocol (RESP).
//
// - `Command` - A client instruction to the server.
// - `Request` - When a client sends a command to the server.
// - `Response` - When a server sends a command response to a client.
// - `Update` - A notification that an instance changed. These are
//              sent from the server to all of it's clients.
//
// === General Syntax
//
// - lines are `\r\n` delimited (a bare `\n` is accepted)
// - Command names are case sensitive and should be uppercase
// - Request/response exchanges are prefixed with a 4 byte request ID chosen
//   by the client, so that replies can be told apart from updates that
//   interleave with them.
//
// === Error responses
//
//   ```
//     <reqID>PING\r\n
//     <reqID>ERR <errMessage>\r\n
//   ```
//
// === QUIT
//
//  ```
//    > <reqID>QUIT\r\n
//    < <reqID>OK\r\n
//  ```
//
// === PING
//
//  ```
//    > <reqID>PING\r\n
//    < <reqID>PONG\r\n
//  ```
//
// === PUB
//
// Publishes one DATA submessage. The submessage is binary, so it is sent as
// exactly <length> raw bytes after the command line.
//
//  ```
//    > <reqID>PUB <length>\r\n
//    > <submessage>
//    < <reqID>OK\r\n
//  ```
//
// === GET
//
// Reads the state of the instance with the given key hash (32 hex digits).
//
//  ```
//    > <reqID>GET <keyHash>\r\n
//    < <reqID>GET\r\n
//    < <instance JSON>\r\n
//  ```
//
// === Instance updates
//
// Whenever a published sample changes an instance, the server pushes the
// update to every client. Updates never include request IDs and are
// prefixed with `*`.
//
//   ```
//   *<keyHash>\n
//   <update JSON>\n
//   ```
