// Package postgres implements keywarden.Repository over database/sql with
// the pgx stdlib driver.
//
// Expected schema:
//
//	create table users (
//	    id             text primary key,
//	    email          text not null unique,
//	    email_verified boolean not null default false,
//	    locked_until   timestamptz,
//	    created_at     timestamptz not null,
//	    updated_at     timestamptz not null
//	);
//
//	create table accounts (
//	    id               text primary key,
//	    user_id          text not null references users(id) on delete cascade,
//	    provider         text not null,
//	    provider_user_id text not null,
//	    password_digest  text not null default '',
//	    created_at       timestamptz not null,
//	    unique (provider, provider_user_id)
//	);
//	create unique index accounts_email_per_user
//	    on accounts (user_id) where provider = 'email';
//
//	create table sessions (
//	    id              text primary key,
//	    user_id         text not null references users(id) on delete cascade,
//	    selector        text not null unique,
//	    verifier_digest bytea not null,
//	    expires_at      timestamptz not null,
//	    ip              text not null default '',
//	    user_agent      text not null default '',
//	    created_at      timestamptz not null
//	);
//
//	create table ephemeral_tokens (
//	    id              text primary key,
//	    kind            text not null,
//	    user_id         text not null default '',
//	    provider        text not null default '',
//	    selector        text not null default '',
//	    verifier_digest bytea not null default '',
//	    state           text not null default '',
//	    pkce_verifier   text not null default '',
//	    redirect_uri    text not null default '',
//	    expires_at      timestamptz not null,
//	    created_at      timestamptz not null
//	);
//	create unique index ephemeral_tokens_selector
//	    on ephemeral_tokens (kind, selector) where selector <> '';
//	create unique index ephemeral_tokens_state
//	    on ephemeral_tokens (state) where state <> '';
//
//	create table login_attempts (
//	    id         text primary key,
//	    user_id    text not null default '',
//	    email      text not null,
//	    ip         text not null default '',
//	    success    boolean not null,
//	    created_at timestamptz not null
//	);
//	create index login_attempts_email_time
//	    on login_attempts (email, created_at);
//
// Unique violations on users.email and the accounts provider pair are
// reported as keywarden.ErrEmailExists; row misses as keywarden.ErrNotFound.
package postgres
