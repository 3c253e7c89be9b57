package discord

import "time"

// Channel types that matter for traversal.
const (
	channelGuildText         = 0
	channelGuildAnnouncement = 5
	channelAnnouncementThrd  = 10
	channelPublicThread      = 11
	channelPrivateThread     = 12
	channelGuildForum        = 15
	channelGuildMedia        = 16
)

type channel struct {
	ID             string          `json:"id"`
	Type           int             `json:"type"`
	GuildID        string          `json:"guild_id"`
	ParentID       string          `json:"parent_id"`
	Name           string          `json:"name"`
	LastMessageID  string          `json:"last_message_id"`
	ThreadMetadata *threadMetadata `json:"thread_metadata,omitempty"`
}

func (c channel) isThread() bool {
	switch c.Type {
	case channelAnnouncementThrd, channelPublicThread, channelPrivateThread:
		return true
	}
	return false
}

func (c channel) isThreaded() bool {
	return c.Type == channelGuildForum || c.Type == channelGuildMedia
}

type threadMetadata struct {
	Archived         bool      `json:"archived"`
	ArchiveTimestamp time.Time `json:"archive_timestamp"`
}

type threadList struct {
	Threads []channel `json:"threads"`
	HasMore bool      `json:"has_more"`
}

type user struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Bot        bool   `json:"bot"`
}

func (u user) displayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

type attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

type message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	Author      user         `json:"author"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []attachment `json:"attachments"`
}
