package game

import "github.com/paint-and-guess/internal/domain"

// Broadcaster delivers outbound events. Events sent by one room must reach
// each connection in the order they were sent.
type Broadcaster interface {
	// ToRoom sends to every connection of the room
	ToRoom(roomID string, ev domain.Event)
	// ToRoomExcept sends to every connection of the room except one
	ToRoomExcept(roomID, exceptConnID string, ev domain.Event)
	// ToConn sends to a single connection
	ToConn(connID string, ev domain.Event)
}

func (r *Room) emitAll(name string, data any) {
	r.out.ToRoom(r.id, domain.Event{Name: name, Data: data})
}

func (r *Room) emitExcept(connID, name string, data any) {
	r.out.ToRoomExcept(r.id, connID, domain.Event{Name: name, Data: data})
}

func (r *Room) emitTo(connID, name string, data any) {
	r.out.ToConn(connID, domain.Event{Name: name, Data: data})
}
