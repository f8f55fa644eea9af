package models

import (
	"database/sql"
	"strings"
)

// Protocol identifies the tunnel type an account was provisioned for.
type Protocol string

const (
	ProtocolSSH         Protocol = "ssh"
	ProtocolVMess       Protocol = "vmess"
	ProtocolVLESS       Protocol = "vless"
	ProtocolTrojan      Protocol = "trojan"
	ProtocolShadowsocks Protocol = "shadowsocks"
	ProtocolZiVPN       Protocol = "zivpn"
	ProtocolUDPHTTP     Protocol = "udp_http"
)

// Protocols lists every supported protocol.
var Protocols = []Protocol{
	ProtocolSSH,
	ProtocolVMess,
	ProtocolVLESS,
	ProtocolTrojan,
	ProtocolShadowsocks,
	ProtocolZiVPN,
	ProtocolUDPHTTP,
}

func (p Protocol) Valid() bool {
	switch p {
	case ProtocolSSH, ProtocolVMess, ProtocolVLESS, ProtocolTrojan,
		ProtocolShadowsocks, ProtocolZiVPN, ProtocolUDPHTTP:
		return true
	}
	return false
}

// Account maps to the `accounts` table — the ledger of every account ever
// provisioned on a remote server. ServerID is 0 on legacy rows that predate
// server linkage; those carry only a domain. ExpiresAt is 0 when no expiry is
// tracked for the account.
type Account struct {
	ID         uint           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID     string         `gorm:"column:user_id;size:64;index:idx_account_identity" json:"user_id"`
	Protocol   Protocol       `gorm:"column:protocol;size:20;index:idx_account_identity" json:"protocol"`
	Username   string         `gorm:"column:username;size:100;index:idx_account_identity" json:"username"`
	Password   sql.NullString `gorm:"column:password;size:200" json:"password"`
	ServerID   uint           `gorm:"column:server_id;default:0" json:"server_id"`
	ServerName string         `gorm:"column:server_name;size:255" json:"server_name"`
	Domain     string         `gorm:"column:domain;size:255" json:"domain"`
	Links      string         `gorm:"column:links;type:text" json:"links"`
	CreatedAt  int64          `gorm:"column:created_at" json:"created_at"`
	ExpiresAt  int64          `gorm:"column:expires_at;default:0;index" json:"expires_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// LinkList splits the stored newline-joined connection links.
func (a *Account) LinkList() []string {
	if a.Links == "" {
		return nil
	}
	return strings.Split(a.Links, "\n")
}

// SetLinkList stores connection links newline-joined.
func (a *Account) SetLinkList(links []string) {
	a.Links = strings.Join(links, "\n")
}
